package models

import "time"

const (
	ResultStatusCompleted = "completed"
	ResultStatusError     = "error"
)

type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one object found by the detector. BlurKernelSize is set only
// for protected classes.
type Detection struct {
	ClassID        int     `json:"class_id"`
	ClassName      string  `json:"class_name"`
	BlurKernelSize int     `json:"blur_kernel_size,omitempty"`
	BBox           BBox    `json:"bbox"`
	Confidence     float64 `json:"confidence"`
}

// SizeVariant describes one stored rendition. Path is relative to the
// photo's storage root; URL is filled in once the variant is published.
type SizeVariant struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

// ProcessingResult is what a worker reports for one pipeline run.
type ProcessingResult struct {
	PhotoID           string                 `json:"photo_id"`
	Status            string                 `json:"status"`
	Filename          string                 `json:"filename,omitempty"`
	Width             int                    `json:"width,omitempty"`
	Height            int                    `json:"height,omitempty"`
	Latitude          *float64               `json:"latitude,omitempty"`
	Longitude         *float64               `json:"longitude,omitempty"`
	CompassAngle      *float64               `json:"compass_angle,omitempty"`
	Altitude          *float64               `json:"altitude,omitempty"`
	CapturedAt        *time.Time             `json:"captured_at,omitempty"`
	EXIFData          map[string]string      `json:"exif_data,omitempty"`
	Sizes             map[string]SizeVariant `json:"sizes,omitempty"`
	DetectedObjects   []Detection            `json:"detected_objects,omitempty"`
	Error             string                 `json:"error,omitempty"`
	RetryAfterMinutes *int                   `json:"retry_after_minutes"`
	ClientSignature   string                 `json:"client_signature,omitempty"`
	ProcessedBy       string                 `json:"processed_by_worker,omitempty"`
}

func (r ProcessingResult) Completed() bool {
	return r.Status == ResultStatusCompleted
}
