package exifmeta

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"
)

const (
	typeByte     = 1
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5

	tagDateTime    = 0x0132
	tagGPSPointer  = 0x8825
	gpsVersionID   = 0x00
	gpsLatRef      = 0x01
	gpsLat         = 0x02
	gpsLonRef      = 0x03
	gpsLon         = 0x04
	gpsAltRef      = 0x05
	gpsAlt         = 0x06
	gpsTrackRef    = 0x0E
	gpsTrack       = 0x0F
	gpsImgDirRef   = 0x10
	gpsImgDir      = 0x11
	gpsDestBearRef = 0x17
	gpsDestBear    = 0x18
)

// BearingTag selects which GPS tag carries the compass bearing.
type BearingTag int

const (
	BearingImgDirection BearingTag = iota
	BearingTrack
	BearingDestBearing
)

// GPS describes the tags Build writes. Nil fields are omitted.
type GPS struct {
	Latitude    *float64
	Longitude   *float64
	Bearing     *float64
	BearingTag  BearingTag
	Altitude    *float64
	Orientation int
	DateTime    time.Time
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

// Build encodes g as an APP1 payload in little-endian TIFF layout.
func Build(g GPS) []byte {
	var ifd0 []ifdEntry
	if g.Orientation > 0 {
		ifd0 = append(ifd0, shortEntry(tagOrientation, uint16(g.Orientation)))
	}
	if !g.DateTime.IsZero() {
		ifd0 = append(ifd0, asciiEntry(tagDateTime, g.DateTime.Format("2006:01:02 15:04:05")))
	}

	gps := gpsEntries(g)
	if len(gps) > 0 {
		ifd0 = append(ifd0, longEntry(tagGPSPointer, 0))
	}

	const first = 8
	head := encodeIFD(first, ifd0)
	if len(gps) > 0 {
		gpsOffset := uint32(first + len(head))
		for i := range ifd0 {
			if ifd0[i].tag == tagGPSPointer {
				ifd0[i] = longEntry(tagGPSPointer, gpsOffset)
			}
		}
		head = encodeIFD(first, ifd0)
		head = append(head, encodeIFD(gpsOffset, gps)...)
	}

	var out bytes.Buffer
	out.Write(exifHeader)
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, uint32(first))
	out.Write(head)
	return out.Bytes()
}

func gpsEntries(g GPS) []ifdEntry {
	var e []ifdEntry
	if g.Latitude != nil {
		ref := "N"
		if *g.Latitude < 0 {
			ref = "S"
		}
		e = append(e, asciiEntry(gpsLatRef, ref), rationalEntry(gpsLat, dms(*g.Latitude)...))
	}
	if g.Longitude != nil {
		ref := "E"
		if *g.Longitude < 0 {
			ref = "W"
		}
		e = append(e, asciiEntry(gpsLonRef, ref), rationalEntry(gpsLon, dms(*g.Longitude)...))
	}
	if g.Altitude != nil {
		var ref byte
		if *g.Altitude < 0 {
			ref = 1
		}
		e = append(e,
			ifdEntry{tag: gpsAltRef, typ: typeByte, count: 1, data: []byte{ref}},
			rationalEntry(gpsAlt, rat(math.Abs(*g.Altitude), 100)))
	}
	if g.Bearing != nil {
		refTag, tag := uint16(gpsImgDirRef), uint16(gpsImgDir)
		switch g.BearingTag {
		case BearingTrack:
			refTag, tag = gpsTrackRef, gpsTrack
		case BearingDestBearing:
			refTag, tag = gpsDestBearRef, gpsDestBear
		}
		e = append(e, asciiEntry(refTag, "T"), rationalEntry(tag, rat(*g.Bearing, 100)))
	}
	if len(e) > 0 {
		e = append(e, ifdEntry{tag: gpsVersionID, typ: typeByte, count: 4, data: []byte{2, 3, 0, 0}})
	}
	return e
}

func encodeIFD(offset uint32, entries []ifdEntry) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dataOffset := offset + 2 + uint32(12*len(entries)) + 4
	var head, data bytes.Buffer
	_ = binary.Write(&head, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&head, le, e.tag)
		_ = binary.Write(&head, le, e.typ)
		_ = binary.Write(&head, le, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head.Write(v)
			continue
		}
		_ = binary.Write(&head, le, dataOffset+uint32(data.Len()))
		data.Write(e.data)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&head, le, uint32(0))
	head.Write(data.Bytes())
	return head.Bytes()
}

func shortEntry(tag, v uint16) ifdEntry {
	b := make([]byte, 2)
	le.PutUint16(b, v)
	return ifdEntry{tag: tag, typ: typeShort, count: 1, data: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: b}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func rationalEntry(tag uint16, vals ...[2]uint32) ifdEntry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint32(b[i*8:], v[0])
		le.PutUint32(b[i*8+4:], v[1])
	}
	return ifdEntry{tag: tag, typ: typeRational, count: uint32(len(vals)), data: b}
}

func rat(v float64, den uint32) [2]uint32 {
	return [2]uint32{uint32(math.Round(v * float64(den))), den}
}

// dms splits an absolute coordinate into degree, minute and second rationals.
func dms(v float64) [][2]uint32 {
	v = math.Abs(v)
	d := math.Floor(v)
	minutes := (v - d) * 60
	m := math.Floor(minutes)
	s := (minutes - m) * 60
	return [][2]uint32{{uint32(d), 1}, {uint32(m), 1}, rat(s, 10000)}
}
