package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/lastseen/internal/images"
	"github.com/your-org/lastseen/pkg/dto"
)

type errorClass struct {
	status  int
	code    string
	message string
}

var errorClasses = []struct {
	target error
	class  errorClass
}{
	{images.ErrInvalidInput, errorClass{http.StatusBadRequest, "invalid_input", ""}},
	{images.ErrForbidden, errorClass{http.StatusForbidden, "forbidden", "not allowed to modify this image"}},
	{images.ErrNotFound, errorClass{http.StatusNotFound, "not_found", "image not found"}},
	{images.ErrCorrupted, errorClass{http.StatusGone, "corrupted", "image data is missing"}},
	{images.ErrUpstreamUnavailable, errorClass{http.StatusServiceUnavailable, "upstream_unavailable", "storage temporarily unavailable"}},
}

func classify(err error) errorClass {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			return ec.class
		}
	}
	return errorClass{http.StatusInternalServerError, "internal", "internal error"}
}

// writeError maps a service error to a status and JSON body. Client errors
// carry their message; server errors only do in dev mode.
func writeError(c *gin.Context, err error, devMode bool) {
	ec := classify(err)

	msg := ec.message
	if msg == "" || devMode {
		msg = err.Error()
	}

	if ec.status >= http.StatusInternalServerError || ec.status == http.StatusGone {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", ec.status,
			"error", err,
		)
	}

	c.AbortWithStatusJSON(ec.status, dto.ErrorResponse{Error: msg, Code: ec.code})
}
