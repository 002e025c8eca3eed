package anonymize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/netx"
)

// Detector finds objects in a decoded image. Boxes are in pixel coordinates
// of img.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// StaticDetector returns the same detections for every image. With no
// detections configured it turns anonymization into a pass-through.
type StaticDetector struct {
	Detections []models.Detection
}

func (d StaticDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	out := make([]models.Detection, len(d.Detections))
	copy(out, d.Detections)
	return out, nil
}

// HTTPDetector posts the image as JPEG to an inference endpoint that answers
// with {"detections":[...]}.
type HTTPDetector struct {
	url    string
	client *http.Client
}

func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{url: url, client: &http.Client{Timeout: timeout}}
}

type detectResponse struct {
	Detections []models.Detection `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode for detector: %w", err)
	}

	var resp detectResponse
	if err := netx.Post(ctx, d.client, d.url, "image/jpeg", &body, &resp); err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	return resp.Detections, nil
}
