package exif

import (
	"encoding/json"
	"fmt"

	"github.com/your-org/lastseen/internal/geo"
)

// Kind is the closed set of EXIF value shapes kept on a record.
type Kind string

const (
	KindInt      Kind = "int"
	KindRational Kind = "rational"
	KindFloat    Kind = "float"
	KindString   Kind = "string"
	KindBytes    Kind = "bytes"
)

// TagMap maps tag names such as "GPSLatitude" to their values.
type TagMap map[string]TagValue

// TagValue holds one tag. Only the field matching Kind is set.
type TagValue struct {
	Kind   Kind
	Ints   []int64
	Rats   []geo.Rational
	Floats []float64
	Str    string
	Bytes  []byte
}

// Len is the number of components in the value.
func (v TagValue) Len() int {
	switch v.Kind {
	case KindInt:
		return len(v.Ints)
	case KindRational:
		return len(v.Rats)
	case KindFloat:
		return len(v.Floats)
	case KindString, KindBytes:
		return 1
	}
	return 0
}

// Number returns component i as a geo.Number when the value is numeric.
func (v TagValue) Number(i int) (geo.Number, bool) {
	if i < 0 || i >= v.Len() {
		return geo.Number{}, false
	}
	switch v.Kind {
	case KindInt:
		return geo.Plain(float64(v.Ints[i])), true
	case KindRational:
		r := v.Rats[i]
		return geo.Rat(r.Num, r.Den), true
	case KindFloat:
		return geo.Plain(v.Floats[i]), true
	}
	return geo.Number{}, false
}

type tagJSON struct {
	Type   Kind            `json:"type"`
	Values json.RawMessage `json:"values"`
}

func (v TagValue) MarshalJSON() ([]byte, error) {
	var values any
	switch v.Kind {
	case KindInt:
		values = v.Ints
	case KindRational:
		pairs := make([][2]int64, len(v.Rats))
		for i, r := range v.Rats {
			pairs[i] = [2]int64{r.Num, r.Den}
		}
		values = pairs
	case KindFloat:
		values = v.Floats
	case KindString:
		values = []string{v.Str}
	case KindBytes:
		values = [][]byte{v.Bytes}
	default:
		return nil, fmt.Errorf("unknown exif kind %q", v.Kind)
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagJSON{Type: v.Kind, Values: raw})
}

func (v *TagValue) UnmarshalJSON(data []byte) error {
	var t tagJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	out := TagValue{Kind: t.Type}
	switch t.Type {
	case KindInt:
		if err := json.Unmarshal(t.Values, &out.Ints); err != nil {
			return fmt.Errorf("decode int tag: %w", err)
		}
	case KindRational:
		var pairs [][2]int64
		if err := json.Unmarshal(t.Values, &pairs); err != nil {
			return fmt.Errorf("decode rational tag: %w", err)
		}
		out.Rats = make([]geo.Rational, len(pairs))
		for i, p := range pairs {
			out.Rats[i] = geo.Rational{Num: p[0], Den: p[1]}
		}
	case KindFloat:
		if err := json.Unmarshal(t.Values, &out.Floats); err != nil {
			return fmt.Errorf("decode float tag: %w", err)
		}
	case KindString:
		var s []string
		if err := json.Unmarshal(t.Values, &s); err != nil {
			return fmt.Errorf("decode string tag: %w", err)
		}
		if len(s) > 0 {
			out.Str = s[0]
		}
	case KindBytes:
		var b [][]byte
		if err := json.Unmarshal(t.Values, &b); err != nil {
			return fmt.Errorf("decode bytes tag: %w", err)
		}
		if len(b) > 0 {
			out.Bytes = b[0]
		}
	default:
		return fmt.Errorf("unknown exif kind %q", t.Type)
	}
	*v = out
	return nil
}
