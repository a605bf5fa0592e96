// Package exiftest builds tiny JPEG files with a GPS IFD for tests.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Rational is a numerator/denominator pair as stored in a TIFF RATIONAL.
type Rational [2]uint32

// DMS is a degrees, minutes, seconds triple of rationals.
type DMS [3]Rational

// Whole builds a DMS from integer degrees, minutes and seconds.
func Whole(deg, min, sec uint32) DMS {
	return DMS{{deg, 1}, {min, 1}, {sec, 1}}
}

const (
	tiffHeaderLen = 8
	ifd0Len       = 2 + 12 + 4
	gpsIFDLen     = 2 + 4*12 + 4
	gpsIFDOffset  = tiffHeaderLen + ifd0Len
	latOffset     = gpsIFDOffset + gpsIFDLen
	lonOffset     = latOffset + 24
)

// JPEGWithGPS returns a minimal JPEG whose APP1 segment carries
// GPSLatitude/GPSLongitude and their refs.
func JPEGWithGPS(lat DMS, latRef string, lon DMS, lonRef string) []byte {
	return wrapJPEG(gpsTIFF(lat, latRef, lon, lonRef))
}

// JPEGWithoutExif returns a JPEG with no APP1 segment.
func JPEGWithoutExif() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x04, 'J', 'F', 0xFF, 0xD9}
}

// JPEGWithDouble returns a JPEG whose IFD0 carries a single DOUBLE tag
// plus an ImageDescription with an embedded NUL.
func JPEGWithDouble(tagID uint16, v float64) []byte {
	le := binary.LittleEndian
	const (
		entries    = 2
		descOffset = tiffHeaderLen + 2 + entries*12 + 4
		desc       = "AB\x00CD\x00"
		dblOffset  = descOffset + len(desc)
	)
	var b bytes.Buffer

	b.WriteString("II")
	_ = binary.Write(&b, le, uint16(42))
	_ = binary.Write(&b, le, uint32(tiffHeaderLen))

	// Entries are sorted by tag id.
	_ = binary.Write(&b, le, uint16(entries))
	writeEntry(&b, 0x010E, 2, uint32(len(desc)), u32(descOffset))
	writeEntry(&b, tagID, 12, 1, u32(uint32(dblOffset)))
	_ = binary.Write(&b, le, uint32(0))

	b.WriteString(desc)
	_ = binary.Write(&b, le, math.Float64bits(v))
	return wrapJPEG(b.Bytes())
}

func gpsTIFF(lat DMS, latRef string, lon DMS, lonRef string) []byte {
	le := binary.LittleEndian
	var b bytes.Buffer

	b.WriteString("II")
	_ = binary.Write(&b, le, uint16(42))
	_ = binary.Write(&b, le, uint32(tiffHeaderLen))

	// IFD0: a single GPSInfoIFDPointer entry.
	_ = binary.Write(&b, le, uint16(1))
	writeEntry(&b, 0x8825, 4, 1, u32(gpsIFDOffset))
	_ = binary.Write(&b, le, uint32(0))

	_ = binary.Write(&b, le, uint16(4))
	writeEntry(&b, 0x0001, 2, 2, ascii(latRef))
	writeEntry(&b, 0x0002, 5, 3, u32(latOffset))
	writeEntry(&b, 0x0003, 2, 2, ascii(lonRef))
	writeEntry(&b, 0x0004, 5, 3, u32(lonOffset))
	_ = binary.Write(&b, le, uint32(0))

	for _, r := range lat {
		_ = binary.Write(&b, le, r[0])
		_ = binary.Write(&b, le, r[1])
	}
	for _, r := range lon {
		_ = binary.Write(&b, le, r[0])
		_ = binary.Write(&b, le, r[1])
	}
	return b.Bytes()
}

func wrapJPEG(tiff []byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&b, binary.BigEndian, uint16(2+6+len(tiff)))
	b.WriteString("Exif\x00\x00")
	b.Write(tiff)
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

func writeEntry(b *bytes.Buffer, id, typ uint16, count uint32, value [4]byte) {
	le := binary.LittleEndian
	_ = binary.Write(b, le, id)
	_ = binary.Write(b, le, typ)
	_ = binary.Write(b, le, count)
	b.Write(value[:])
}

func u32(v uint32) [4]byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], v)
	return out
}

func ascii(ref string) [4]byte {
	var out [4]byte
	if len(ref) > 0 {
		out[0] = ref[0]
	}
	return out
}
