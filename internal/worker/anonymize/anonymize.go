// Package anonymize blurs people and vehicles out of uploaded photos before
// anything is published.
package anonymize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/worker/exifmeta"
	"github.com/dmitrijs2005/geoupload/internal/worker/failure"

	_ "golang.org/x/image/webp"
)

const (
	MaxSide   = 8192
	MaxPixels = 64 << 20

	personKernel  = 151
	vehicleKernel = 101

	outputQuality = 95
)

// protectedClasses are the detector class ids that must be blurred.
var protectedClasses = map[int]string{
	0: "person",
	1: "bicycle",
	2: "car",
	3: "motorcycle",
	5: "bus",
	7: "truck",
}

// KernelSize returns the blur kernel for a class and whether it is protected.
func KernelSize(classID int) (int, bool) {
	if _, ok := protectedClasses[classID]; !ok {
		return 0, false
	}
	if classID == 0 {
		return personKernel, true
	}
	return vehicleKernel, true
}

// Sigma converts an odd kernel size to the Gaussian sigma a kernel of that
// size implies.
func Sigma(kernel int) float64 {
	return 0.3*((float64(kernel)-1)*0.5-1) + 0.8
}

// Result is the anonymized photo. Data is the input unchanged when nothing
// was blurred. Ext is set only when the output format differs from the input.
type Result struct {
	Data       []byte
	Image      image.Image
	Width      int
	Height     int
	Detections []models.Detection
	Blurred    bool
	Ext        string

	// MetadataDropped is set when the source EXIF could not be carried over
	// to the blurred JPEG.
	MetadataDropped bool
}

type Anonymizer struct {
	detector Detector
	logger   logging.Logger
}

func New(detector Detector, logger logging.Logger) *Anonymizer {
	return &Anonymizer{detector: detector, logger: logger.With("module", "anonymize")}
}

// Process decodes data, runs detection and blurs every protected object.
func (a *Anonymizer) Process(ctx context.Context, data []byte) (*Result, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, failure.Permanent(fmt.Errorf("Invalid image file content: %v", err))
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, failure.Permanent(fmt.Errorf("Invalid image file content: %v", err))
	}
	b := img.Bounds()

	found, err := a.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect objects: %w", err)
	}

	var protected []models.Detection
	for _, d := range found {
		k, ok := KernelSize(d.ClassID)
		if !ok {
			continue
		}
		d.BlurKernelSize = k
		if d.ClassName == "" {
			d.ClassName = protectedClasses[d.ClassID]
		}
		protected = append(protected, d)
	}

	res := &Result{Image: img, Width: b.Dx(), Height: b.Dy(), Detections: protected}
	if len(protected) == 0 {
		a.logger.Debug(ctx, "no protected objects detected", "detections", len(found))
		res.Data = data
		return res, nil
	}

	blurred := imaging.Clone(img)
	for _, d := range protected {
		r := clip(d.BBox, blurred.Bounds())
		if r.Empty() {
			continue
		}
		patch := imaging.Blur(imaging.Crop(blurred, r), Sigma(d.BlurKernelSize))
		draw.Draw(blurred, r, patch, image.Point{}, draw.Src)
		a.logger.Debug(ctx, "blurred object", "class", d.ClassName, "x1", r.Min.X, "y1", r.Min.Y, "x2", r.Max.X, "y2", r.Max.Y)
	}

	out, ext, err := encode(blurred, format, data)
	var dropped *metadataError
	if errors.As(err, &dropped) {
		a.logger.Warn(ctx, "exif metadata dropped from blurred photo", "error", dropped.err)
		res.MetadataDropped = true
		err = nil
	}
	if err != nil {
		return nil, err
	}

	res.Data = out
	res.Image = blurred
	res.Blurred = true
	res.Ext = ext
	return res, nil
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w > MaxSide || h > MaxSide || w*h > MaxPixels {
		return failure.Permanent(fmt.Errorf("Image size too large or invalid (%dx%d). Please use a smaller image.", w, h))
	}
	return nil
}

func clip(box models.BBox, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Floor(box.X1)), int(math.Floor(box.Y1)),
		int(math.Ceil(box.X2)), int(math.Ceil(box.Y2)),
	)
	return r.Intersect(bounds)
}

// metadataError reports a source EXIF block that could not be rewritten.
// The accompanying output is still a valid image.
type metadataError struct{ err error }

func (e *metadataError) Error() string { return "rewrite exif: " + e.err.Error() }
func (e *metadataError) Unwrap() error { return e.err }

// encode writes img in the source format. JPEG output carries the source's
// EXIF block with orientation reset, since the pixels are already upright.
// If that block cannot be rewritten the image is returned without it along
// with a *metadataError.
func encode(img image.Image, format string, src []byte) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case "png", "gif", "bmp", "tiff":
		f, err := imaging.FormatFromExtension(format)
		if err != nil {
			return nil, "", err
		}
		if err := imaging.Encode(&buf, img, f); err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", format, err)
		}
		return buf.Bytes(), "", nil
	}

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(outputQuality)); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	ext := ""
	if format != "jpeg" {
		ext = ".jpg"
	}

	payload, ok := exifmeta.Extract(src)
	if !ok {
		return buf.Bytes(), ext, nil
	}
	payload, err := exifmeta.ResetOrientation(payload)
	if err != nil {
		return buf.Bytes(), ext, &metadataError{err: err}
	}
	out, err := exifmeta.Reattach(buf.Bytes(), payload)
	if err != nil {
		return nil, "", fmt.Errorf("reattach exif: %w", err)
	}
	return out, ext, nil
}
