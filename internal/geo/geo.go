// Package geo turns EXIF GPS tags and device-reported coordinates into a
// single validated point.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Point is a WGS84 position. A nil *Point means "no location".
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid reports whether p is in range and not the {0,0} placeholder.
// Null Island is treated as unset because older records used it as a default.
func (p Point) Valid() bool {
	if !finite(p.Latitude) || !finite(p.Longitude) {
		return false
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return false
	}
	return !(p.Latitude == 0 && p.Longitude == 0)
}

// Rational is an EXIF RATIONAL / SRATIONAL value.
type Rational struct {
	Num int64
	Den int64
}

// Number is one DMS component, either a plain value or a rational.
type Number struct {
	Value    float64
	Rational *Rational
}

// Float normalizes n. It fails on a zero denominator or a non-finite value.
func (n Number) Float() (float64, bool) {
	v := n.Value
	if n.Rational != nil {
		if n.Rational.Den == 0 {
			return 0, false
		}
		v = float64(n.Rational.Num) / float64(n.Rational.Den)
	}
	if !finite(v) {
		return 0, false
	}
	return v, true
}

// Plain wraps a float as a Number.
func Plain(v float64) Number { return Number{Value: v} }

// Rat wraps num/den as a Number.
func Rat(num, den int64) Number { return Number{Rational: &Rational{Num: num, Den: den}} }

// DMS is a degrees, minutes, seconds triple.
type DMS [3]Number

// Decimal returns deg + min/60 + sec/3600 computed on magnitudes.
func (d DMS) Decimal() (float64, bool) {
	var parts [3]float64
	for i, n := range d {
		v, ok := n.Float()
		if !ok {
			return 0, false
		}
		parts[i] = math.Abs(v)
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, true
}

// ApplyRef signs a decimal degree value by its hemisphere reference.
// The magnitude is negated for S and W so that sources which already
// encode a negative value do not flip back to positive.
func ApplyRef(v float64, ref string) float64 {
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return -math.Abs(v)
	default:
		return math.Abs(v)
	}
}

// GPS holds the four EXIF GPS tags needed to place an image.
type GPS struct {
	Lat    DMS
	LatRef string
	Lon    DMS
	LonRef string
}

// Point converts g to a validated point, or nil.
func (g *GPS) Point() *Point {
	if g == nil {
		return nil
	}
	lat, ok := g.Lat.Decimal()
	if !ok {
		return nil
	}
	lon, ok := g.Lon.Decimal()
	if !ok {
		return nil
	}
	p := Point{Latitude: ApplyRef(lat, g.LatRef), Longitude: ApplyRef(lon, g.LonRef)}
	if !p.Valid() {
		return nil
	}
	return &p
}

// Device is the raw latitude/longitude pair sent by a client.
type Device struct {
	Lat string
	Lng string
}

// Point parses d into a validated point, or nil.
func (d *Device) Point() *Point {
	if d == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(d.Lat), 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(d.Lng), 64)
	if err != nil {
		return nil
	}
	p := Point{Latitude: lat, Longitude: lng}
	if !p.Valid() {
		return nil
	}
	return &p
}

// Source names where a resolved location came from.
type Source string

const (
	SourceExif   Source = "exif"
	SourceDevice Source = "device"
	SourceNone   Source = "none"
)

// Resolve picks the EXIF location when usable, then the device location.
func Resolve(gps *GPS, device *Device) *Point {
	p, _ := ResolveWithSource(gps, device)
	return p
}

// ResolveWithSource is Resolve that also reports which input won.
func ResolveWithSource(gps *GPS, device *Device) (*Point, Source) {
	if p := gps.Point(); p != nil {
		return p, SourceExif
	}
	if p := device.Point(); p != nil {
		return p, SourceDevice
	}
	return nil, SourceNone
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
