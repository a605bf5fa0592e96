package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDMSDecimal(t *testing.T) {
	tests := []struct {
		name string
		dms  DMS
		want float64
	}{
		{"plain", DMS{Plain(10), Plain(30), Plain(0)}, 10.5},
		{"rational", DMS{Rat(10, 1), Rat(30, 1), Rat(0, 1)}, 10.5},
		{"mixed", DMS{Plain(7), Rat(15, 2), Rat(3600, 100)}, 7 + 7.5/60 + 36.0/3600},
		{"seconds only", DMS{Plain(0), Plain(0), Plain(36)}, 0.01},
		{"negative encoding uses magnitude", DMS{Plain(-33), Plain(52), Plain(4)}, 33 + 52.0/60 + 4.0/3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.dms.Decimal()
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDMSDecimalRejectsZeroDenominator(t *testing.T) {
	_, ok := DMS{Rat(10, 0), Plain(0), Plain(0)}.Decimal()
	assert.False(t, ok)
}

func TestApplyRef(t *testing.T) {
	assert.Equal(t, 10.5, ApplyRef(10.5, "N"))
	assert.Equal(t, -10.5, ApplyRef(10.5, "S"))
	assert.Equal(t, -10.5, ApplyRef(-10.5, "S"))
	assert.Equal(t, -7.0, ApplyRef(7, " w "))
	assert.Equal(t, 7.0, ApplyRef(-7, "E"))
	assert.Equal(t, 7.0, ApplyRef(7, ""))
}

func TestResolveExifGPS(t *testing.T) {
	gps := &GPS{
		Lat: DMS{Rat(10, 1), Rat(30, 1), Rat(0, 1)}, LatRef: "N",
		Lon: DMS{Rat(7, 1), Rat(0, 1), Rat(0, 1)}, LonRef: "E",
	}
	p, src := ResolveWithSource(gps, nil)
	require.NotNil(t, p)
	assert.Equal(t, SourceExif, src)
	assert.InDelta(t, 10.5, p.Latitude, 1e-9)
	assert.InDelta(t, 7.0, p.Longitude, 1e-9)
}

func TestResolveSouthWest(t *testing.T) {
	gps := &GPS{
		Lat: DMS{Plain(33), Plain(51), Plain(54)}, LatRef: "S",
		Lon: DMS{Plain(151), Plain(12), Plain(36)}, LonRef: "W",
	}
	p := Resolve(gps, nil)
	require.NotNil(t, p)
	assert.InDelta(t, -(33 + 51.0/60 + 54.0/3600), p.Latitude, 1e-9)
	assert.InDelta(t, -(151 + 12.0/60 + 36.0/3600), p.Longitude, 1e-9)
}

func TestResolveExifWinsOverDevice(t *testing.T) {
	gps := &GPS{
		Lat: DMS{Plain(10), Plain(30), Plain(0)}, LatRef: "N",
		Lon: DMS{Plain(7), Plain(0), Plain(0)}, LonRef: "E",
	}
	p, src := ResolveWithSource(gps, &Device{Lat: "9.0765", Lng: "7.3986"})
	require.NotNil(t, p)
	assert.Equal(t, SourceExif, src)
	assert.Equal(t, Point{Longitude: 7, Latitude: 10.5}, *p)
}

func TestResolveFallsBackToDevice(t *testing.T) {
	p, src := ResolveWithSource(nil, &Device{Lat: "9.0765", Lng: "7.3986"})
	require.NotNil(t, p)
	assert.Equal(t, SourceDevice, src)
	assert.Equal(t, Point{Longitude: 7.3986, Latitude: 9.0765}, *p)
}

func TestResolveInvalidExifFallsBackToDevice(t *testing.T) {
	gps := &GPS{Lat: DMS{Rat(1, 0)}, LatRef: "N", Lon: DMS{Plain(7)}, LonRef: "E"}
	p, src := ResolveWithSource(gps, &Device{Lat: "1.5", Lng: "2.5"})
	require.NotNil(t, p)
	assert.Equal(t, SourceDevice, src)
}

func TestResolveNoLocation(t *testing.T) {
	tests := []struct {
		name   string
		gps    *GPS
		device *Device
	}{
		{"nothing", nil, nil},
		{"empty device", nil, &Device{}},
		{"unparseable", nil, &Device{Lat: "north", Lng: "7"}},
		{"latitude out of range", nil, &Device{Lat: "91", Lng: "7"}},
		{"longitude out of range", nil, &Device{Lat: "9", Lng: "-180.5"}},
		{"nan", nil, &Device{Lat: "NaN", Lng: "7"}},
		{"inf", nil, &Device{Lat: "9", Lng: "+Inf"}},
		{"null island device", nil, &Device{Lat: "0", Lng: "0"}},
		{"null island exif", &GPS{LatRef: "N", LonRef: "E"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, src := ResolveWithSource(tt.gps, tt.device)
			assert.Nil(t, p)
			assert.Equal(t, SourceNone, src)
		})
	}
}

func TestPointValidBounds(t *testing.T) {
	assert.True(t, Point{Longitude: 180, Latitude: 90}.Valid())
	assert.True(t, Point{Longitude: -180, Latitude: -90}.Valid())
	assert.True(t, Point{Longitude: 0, Latitude: 0.0001}.Valid())
	assert.False(t, Point{Longitude: math.Inf(1), Latitude: 1}.Valid())
}
