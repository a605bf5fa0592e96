// Package exif extracts embedded EXIF tags from image bytes.
package exif

import (
	"bytes"
	"log/slog"
	"math"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/your-org/lastseen/internal/geo"
)

// Undefined-typed tags above this size (maker notes, thumbnails) are not kept.
const maxBytesTag = 1024

func init() {
	exif.RegisterParsers(mknote.All...)
}

// Extract decodes every EXIF tag in buf. Any failure yields an empty map;
// a broken or missing EXIF block never stops an upload.
func Extract(buf []byte) (tags TagMap) {
	tags = TagMap{}
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("exif decode panicked", "panic", r)
			tags = TagMap{}
		}
	}()

	x, err := exif.Decode(bytes.NewReader(buf))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		slog.Debug("no exif data", "error", err)
		return TagMap{}
	}

	if err := x.Walk(walker(tags)); err != nil {
		slog.Debug("walk exif tags", "error", err)
		return TagMap{}
	}
	return tags
}

type walker TagMap

func (w walker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if v, ok := convert(tag); ok {
		w[string(name)] = v
	}
	return nil
}

func convert(tag *tiff.Tag) (TagValue, bool) {
	if tag == nil {
		return TagValue{}, false
	}
	n := int(tag.Count)

	switch tag.Format() {
	case tiff.IntVal:
		vals := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				return TagValue{}, false
			}
			vals = append(vals, v)
		}
		return TagValue{Kind: KindInt, Ints: vals}, true

	case tiff.RatVal:
		vals := make([]geo.Rational, 0, n)
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return TagValue{}, false
			}
			vals = append(vals, geo.Rational{Num: num, Den: den})
		}
		return TagValue{Kind: KindRational, Rats: vals}, true

	case tiff.FloatVal:
		vals := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Float(i)
			// NaN and Inf have no JSON form.
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return TagValue{}, false
			}
			vals = append(vals, v)
		}
		return TagValue{Kind: KindFloat, Floats: vals}, true

	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return TagValue{}, false
		}
		return TagValue{Kind: KindString, Str: strings.TrimRight(s, "\x00")}, true

	case tiff.UndefVal:
		if len(tag.Val) > maxBytesTag {
			return TagValue{}, false
		}
		b := make([]byte, len(tag.Val))
		copy(b, tag.Val)
		return TagValue{Kind: KindBytes, Bytes: b}, true
	}
	return TagValue{}, false
}

// GPS rebuilds the GPS DMS triples and refs, or returns nil when the image
// carries no usable latitude and longitude.
func (m TagMap) GPS() *geo.GPS {
	lat, ok := m.dms("GPSLatitude")
	if !ok {
		return nil
	}
	lon, ok := m.dms("GPSLongitude")
	if !ok {
		return nil
	}
	return &geo.GPS{
		Lat:    lat,
		LatRef: m.String("GPSLatitudeRef"),
		Lon:    lon,
		LonRef: m.String("GPSLongitudeRef"),
	}
}

// String returns a string tag, or "" if absent or not a string.
func (m TagMap) String(name string) string {
	v, ok := m[name]
	if !ok {
		return ""
	}
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBytes:
		return strings.TrimRight(string(v.Bytes), "\x00")
	}
	return ""
}

// Missing minutes or seconds count as zero.
func (m TagMap) dms(name string) (geo.DMS, bool) {
	v, ok := m[name]
	if !ok || v.Len() == 0 {
		return geo.DMS{}, false
	}
	var d geo.DMS
	for i := 0; i < 3 && i < v.Len(); i++ {
		n, ok := v.Number(i)
		if !ok {
			return geo.DMS{}, false
		}
		d[i] = n
	}
	return d, true
}
