// Package faces talks to the external face-recognition service and applies
// its matches to images and users.
package faces

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/lastseen/internal/config"
	"github.com/your-org/lastseen/internal/models"
)

// maxResponseBytes caps how much of a recognize response is read.
const maxResponseBytes = 1 << 20

// Client calls POST <url> with {"fileId": <blob id>}.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(cfg config.FacesConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:  cfg.URL,
		http: &http.Client{Timeout: timeout},
	}
}

type recognizeRequest struct {
	FileID string `json:"fileId"`
}

type rawMatch struct {
	UserID     string  `json:"userId"`
	Confidence float64 `json:"confidence"`
}

type recognizeResponse struct {
	Matches []rawMatch `json:"matches"`
	Faces   int        `json:"faces"`
}

// Recognize returns the users whose faces appear in the blob.
func (c *Client) Recognize(ctx context.Context, blobID string) ([]models.DetectedFace, error) {
	body, err := json.Marshal(recognizeRequest{FileID: blobID})
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call face service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read face service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	raw, err := decodeMatches(data)
	if err != nil {
		return nil, err
	}
	return normalize(raw), nil
}

// decodeMatches accepts {"matches":[...]} or a bare array.
func decodeMatches(data []byte) ([]rawMatch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []rawMatch
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode face matches: %w", err)
		}
		return list, nil
	}

	var wrapped recognizeResponse
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode face matches: %w", err)
	}
	return wrapped.Matches, nil
}

// normalize drops unknown ids, clamps confidence to [0,1] and keeps the
// best score per user.
func normalize(raw []rawMatch) []models.DetectedFace {
	out := make([]models.DetectedFace, 0, len(raw))
	index := make(map[uuid.UUID]int, len(raw))
	for _, m := range raw {
		id, err := uuid.Parse(m.UserID)
		if err != nil {
			slog.Debug("dropping face match with bad user id", "user_id", m.UserID)
			continue
		}
		conf := clamp(m.Confidence)
		if i, ok := index[id]; ok {
			if conf > out[i].Confidence {
				out[i].Confidence = conf
			}
			continue
		}
		index[id] = len(out)
		out = append(out, models.DetectedFace{UserID: id, Confidence: conf})
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
