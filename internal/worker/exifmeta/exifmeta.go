// Package exifmeta moves the EXIF APP1 segment between JPEG encodings and
// writes small GPS-tagged EXIF blocks.
//
// A payload is the body of an APP1 segment: "Exif\x00\x00" followed by a
// TIFF structure.
package exifmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1

	tagOrientation = 0x0112
	typeShort      = 3

	maxSegmentBody = 0xFFFF - 2
)

var exifHeader = []byte("Exif\x00\x00")

var (
	ErrNotJPEG        = errors.New("not a jpeg stream")
	ErrMalformed      = errors.New("malformed jpeg segment")
	ErrPayloadTooBig  = errors.New("exif payload does not fit in one segment")
	ErrInvalidPayload = errors.New("invalid exif payload")
)

type segment struct {
	marker byte
	start  int
	end    int
	body   []byte
}

// segments walks the marker segments that precede the scan data.
func segments(jpeg []byte) ([]segment, int, error) {
	if len(jpeg) < 4 || jpeg[0] != 0xFF || jpeg[1] != markerSOI {
		return nil, 0, ErrNotJPEG
	}

	var out []segment
	i := 2
	for i < len(jpeg) {
		if jpeg[i] != 0xFF {
			return nil, 0, fmt.Errorf("%w: expected marker at %d", ErrMalformed, i)
		}
		for i < len(jpeg) && jpeg[i] == 0xFF {
			i++
		}
		if i >= len(jpeg) {
			break
		}
		marker := jpeg[i]
		start := i - 1
		i++

		if marker == markerSOS || marker == markerEOI {
			return out, start, nil
		}
		if marker >= 0xD0 && marker <= 0xD7 || marker == 0x01 {
			continue
		}

		if i+2 > len(jpeg) {
			return nil, 0, fmt.Errorf("%w: truncated length", ErrMalformed)
		}
		n := int(binary.BigEndian.Uint16(jpeg[i : i+2]))
		if n < 2 || i+n > len(jpeg) {
			return nil, 0, fmt.Errorf("%w: bad length %d", ErrMalformed, n)
		}
		out = append(out, segment{marker: marker, start: start, end: i + n, body: jpeg[i+2 : i+n]})
		i += n
	}
	return out, len(jpeg), nil
}

// Extract returns a copy of the first EXIF APP1 payload of a JPEG stream.
func Extract(jpeg []byte) ([]byte, bool) {
	segs, _, err := segments(jpeg)
	if err != nil {
		return nil, false
	}
	for _, s := range segs {
		if s.marker == markerAPP1 && bytes.HasPrefix(s.body, exifHeader) {
			return bytes.Clone(s.body), true
		}
	}
	return nil, false
}

// Reattach returns jpeg with its EXIF APP1 segments replaced by payload,
// placed directly after SOI and any JFIF APP0 segment.
func Reattach(jpeg, payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, exifHeader) {
		return nil, ErrInvalidPayload
	}
	if len(payload) > maxSegmentBody {
		return nil, ErrPayloadTooBig
	}

	segs, _, err := segments(jpeg)
	if err != nil {
		return nil, err
	}

	insertAt := 2
	if len(segs) > 0 && segs[0].marker == 0xE0 {
		insertAt = segs[0].end
	}

	var out bytes.Buffer
	out.Grow(len(jpeg) + len(payload) + 4)
	out.Write(jpeg[:insertAt])
	out.Write([]byte{0xFF, markerAPP1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)

	pos := insertAt
	for _, s := range segs {
		if s.start < insertAt {
			continue
		}
		if s.marker == markerAPP1 && bytes.HasPrefix(s.body, exifHeader) {
			out.Write(jpeg[pos:s.start])
			pos = s.end
		}
	}
	out.Write(jpeg[pos:])
	return out.Bytes(), nil
}

// ResetOrientation returns a copy of payload whose IFD0 Orientation tag,
// when present, is 1.
func ResetOrientation(payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, exifHeader) {
		return nil, ErrInvalidPayload
	}
	out := bytes.Clone(payload)
	tiff := out[len(exifHeader):]

	order, ifd0, err := tiffHeader(tiff)
	if err != nil {
		return nil, err
	}

	if int(ifd0)+2 > len(tiff) {
		return nil, fmt.Errorf("%w: ifd0 offset %d", ErrInvalidPayload, ifd0)
	}
	n := int(order.Uint16(tiff[ifd0:]))
	for k := 0; k < n; k++ {
		e := int(ifd0) + 2 + k*12
		if e+12 > len(tiff) {
			return nil, fmt.Errorf("%w: truncated ifd0", ErrInvalidPayload)
		}
		if order.Uint16(tiff[e:]) != tagOrientation {
			continue
		}
		if order.Uint16(tiff[e+2:]) == typeShort {
			order.PutUint16(tiff[e+8:], 1)
		}
		break
	}
	return out, nil
}

// Orientation reports the IFD0 Orientation value, or 1 when absent.
func Orientation(payload []byte) int {
	if !bytes.HasPrefix(payload, exifHeader) {
		return 1
	}
	tiff := payload[len(exifHeader):]
	order, ifd0, err := tiffHeader(tiff)
	if err != nil || int(ifd0)+2 > len(tiff) {
		return 1
	}
	n := int(order.Uint16(tiff[ifd0:]))
	for k := 0; k < n; k++ {
		e := int(ifd0) + 2 + k*12
		if e+12 > len(tiff) {
			return 1
		}
		if order.Uint16(tiff[e:]) == tagOrientation && order.Uint16(tiff[e+2:]) == typeShort {
			return int(order.Uint16(tiff[e+8:]))
		}
	}
	return 1
}

func tiffHeader(tiff []byte) (binary.ByteOrder, uint32, error) {
	if len(tiff) < 8 {
		return nil, 0, fmt.Errorf("%w: short tiff header", ErrInvalidPayload)
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, fmt.Errorf("%w: byte order %q", ErrInvalidPayload, tiff[:2])
	}
	if order.Uint16(tiff[2:]) != 42 {
		return nil, 0, fmt.Errorf("%w: tiff magic", ErrInvalidPayload)
	}
	return order, order.Uint32(tiff[4:]), nil
}
