// Package geo reads the location, bearing and capture time a photo carries in
// its EXIF block.
package geo

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/worker/failure"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// bearingTags are consulted in order; the first present one wins.
var bearingTags = []exif.FieldName{exif.GPSImgDirection, exif.GPSTrack, exif.GPSDestBearing}

const maxUndefinedLen = 64

// Metadata is what a photo must carry to be placed on the map.
type Metadata struct {
	Latitude   float64
	Longitude  float64
	Bearing    float64
	BearingTag string
	Altitude   *float64
	CapturedAt *time.Time
	Tags       map[string]string
}

// Extract decodes EXIF from r (JPEG or TIFF) and applies the presence policy:
// both coordinates and one bearing tag are required. Every policy failure is
// permanent.
func Extract(r io.Reader) (*Metadata, error) {
	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return nil, failure.Permanent(errors.New("No EXIF data found in image file. Photo may be processed/edited or from an app that strips metadata."))
	}

	tags := collectTags(x)

	var gpsFound, bearingFound []string
	for name := range tags {
		if !strings.HasPrefix(name, "GPS") || name == string(exif.GPSInfoIFDPointer) {
			continue
		}
		if isBearingTag(name) {
			bearingFound = append(bearingFound, name)
		} else {
			gpsFound = append(gpsFound, name)
		}
	}
	sort.Strings(gpsFound)
	sort.Strings(bearingFound)

	_, latErr := x.Get(exif.GPSLatitude)
	_, lonErr := x.Get(exif.GPSLongitude)
	hasCoords := latErr == nil && lonErr == nil

	bearing, bearingTag, hasBearing := firstBearing(x)

	if err := missingTags(hasCoords, hasBearing, gpsFound, bearingFound); err != nil {
		return nil, err
	}

	lat, lon, err := coordinates(x)
	if err != nil {
		return nil, failure.Permanent(fmt.Errorf("GPS coordinates unreadable: %v", err))
	}

	md := &Metadata{
		Latitude:   lat,
		Longitude:  lon,
		Bearing:    bearing,
		BearingTag: bearingTag,
		Altitude:   altitude(x),
		Tags:       tags,
	}
	if ts, err := x.DateTime(); err == nil {
		md.CapturedAt = &ts
	}
	return md, nil
}

func isBearingTag(name string) bool {
	for _, b := range bearingTags {
		if string(b) == name || string(b)+"Ref" == name {
			return true
		}
	}
	return false
}

// missingTags returns the permanent failure for a photo lacking coordinates
// or a bearing, or nil when both are present.
func missingTags(hasCoords, hasBearing bool, gpsFound, bearingFound []string) error {
	switch {
	case !hasCoords && !hasBearing:
		return failure.Permanent(fmt.Errorf("No GPS data found in photo. Found EXIF tags: %s", listOrNone(gpsFound)))
	case !hasCoords:
		return failure.Permanent(fmt.Errorf("GPS coordinates missing. Found tags: %s, needed: GPSLatitude, GPSLongitude",
			listOrNone(append(gpsFound, bearingFound...))))
	case !hasBearing:
		return failure.Permanent(fmt.Errorf("Compass direction missing. Found: %s, needed: GPSImgDirection, GPSTrack, or GPSDestBearing",
			listOrNone(append(gpsFound, bearingFound...))))
	}
	return nil
}

func listOrNone(l []string) string {
	if len(l) == 0 {
		return "none"
	}
	return strings.Join(l, ", ")
}

type tagCollector map[string]string

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err == nil {
			c[string(name)] = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		}
	case tiff.UndefVal:
		if tag.Count <= maxUndefinedLen {
			c[string(name)] = strings.Trim(tag.String(), `"`)
		}
	default:
		c[string(name)] = tag.String()
	}
	return nil
}

func collectTags(x *exif.Exif) map[string]string {
	c := tagCollector{}
	_ = x.Walk(c)
	return c
}

func firstBearing(x *exif.Exif) (float64, string, bool) {
	for _, name := range bearingTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		v, err := scalar(tag)
		if err != nil || math.IsNaN(v) {
			continue
		}
		return v, string(name), true
	}
	return 0, "", false
}

// coordinates prefers the library's reference-aware conversion and falls
// back to unsigned values when the N/S or E/W reference tags are missing.
func coordinates(x *exif.Exif) (float64, float64, error) {
	lat, lon, err := x.LatLong()
	if err == nil {
		return lat, lon, nil
	}
	if !exif.IsTagNotPresentError(err) {
		return 0, 0, err
	}

	latTag, err := x.Get(exif.GPSLatitude)
	if err != nil {
		return 0, 0, err
	}
	lonTag, err := x.Get(exif.GPSLongitude)
	if err != nil {
		return 0, 0, err
	}
	if lat, err = degrees(latTag); err != nil {
		return 0, 0, err
	}
	if lon, err = degrees(lonTag); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func altitude(x *exif.Exif) *float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	v, err := scalar(tag)
	if err != nil {
		return nil
	}
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if n, err := ref.Int(0); err == nil && n == 1 {
			v = -v
		}
	}
	return &v
}

func degrees(tag *tiff.Tag) (float64, error) {
	if tag.Format() != tiff.RatVal || tag.Count < 3 {
		return 0, fmt.Errorf("unexpected coordinate format")
	}
	var parts [3]float64
	for i := range parts {
		n, d, err := tag.Rat2(i)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator")
		}
		parts[i] = float64(n) / float64(d)
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, nil
}

func scalar(tag *tiff.Tag) (float64, error) {
	if tag.Count == 0 {
		return 0, fmt.Errorf("empty tag")
	}
	switch tag.Format() {
	case tiff.RatVal:
		n, d, err := tag.Rat2(0)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator")
		}
		return float64(n) / float64(d), nil
	case tiff.IntVal:
		n, err := tag.Int64(0)
		return float64(n), err
	case tiff.FloatVal:
		return tag.Float(0)
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(s, "\x00")), 64)
	default:
		return 0, fmt.Errorf("unsupported tag format")
	}
}
