// Package pipeline runs one accepted upload through geo extraction,
// admission, anonymization, derivative generation and storage, then reports
// the outcome to the Authority.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/worker/anonymize"
	"github.com/dmitrijs2005/geoupload/internal/worker/attest"
	"github.com/dmitrijs2005/geoupload/internal/worker/derivative"
	"github.com/dmitrijs2005/geoupload/internal/worker/failure"
	"github.com/dmitrijs2005/geoupload/internal/worker/geo"
	"github.com/dmitrijs2005/geoupload/internal/worker/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/geoupload/internal/worker/pipeline"

// Admitter gates the start of anonymization.
type Admitter interface {
	Admit(ctx context.Context) (time.Duration, error)
}

// Publisher stores a photo's variants and returns their public descriptions.
type Publisher interface {
	Store(ctx context.Context, photoID string, variants []derivative.Variant) (map[string]models.SizeVariant, error)
}

// Notifier delivers a result to the Authority.
type Notifier interface {
	Notify(ctx context.Context, result models.ProcessingResult) (*attest.Ack, error)
}

// Upload is an accepted, validated file waiting to be processed.
type Upload struct {
	PhotoID         string
	UserID          string
	ClientKeyID     string
	Filename        string
	ClientSignature string
	Path            string
}

// Outcome reports what happened to the photo and whether the Authority
// heard about it. NotifyErr is independent of Result.Status.
type Outcome struct {
	Result    models.ProcessingResult
	Failure   *failure.Classification
	Ack       *attest.Ack
	NotifyErr error
}

type Service struct {
	gate       Admitter
	anonymizer *anonymize.Anonymizer
	generator  *derivative.Generator
	publisher  Publisher
	notifier   Notifier
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     logging.Logger
}

func NewService(gate Admitter, a *anonymize.Anonymizer, g *derivative.Generator, p Publisher, n Notifier, m *metrics.Metrics, logger logging.Logger) *Service {
	return &Service{
		gate:       gate,
		anonymizer: a,
		generator:  g,
		publisher:  p,
		notifier:   n,
		metrics:    m,
		tracer:     otel.Tracer(tracerName),
		logger:     logger.With("module", "pipeline"),
	}
}

// Process runs the pipeline to completion regardless of ctx cancellation and
// always attempts to notify the Authority. The uploaded file and the local
// derivatives are removed before returning.
func (s *Service) Process(ctx context.Context, up Upload) Outcome {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "process_upload", trace.WithAttributes(
		attribute.String("photo_id", up.PhotoID),
		attribute.String("user_id", up.UserID),
	))
	defer span.End()
	defer os.Remove(up.Path)

	var out Outcome
	result, err := s.run(ctx, up)
	if err != nil {
		c := failure.Classify(err)
		out.Failure = &c
		s.metrics.Failure(string(c.Kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, c.Message)
		s.logger.Warn(ctx, "processing failed", "photo_id", up.PhotoID, "kind", c.Kind, "error", err)

		result = models.ProcessingResult{
			PhotoID:           up.PhotoID,
			Status:            models.ResultStatusError,
			Filename:          up.Filename,
			Error:             c.Message,
			RetryAfterMinutes: c.RetryAfterMinutes,
			ClientSignature:   up.ClientSignature,
		}
	}
	s.metrics.Upload(result.Status)
	out.Result = result

	err = s.stage(ctx, "notify", func(ctx context.Context) error {
		ack, err := s.notifier.Notify(ctx, result)
		out.Ack = ack
		return err
	})
	if err != nil {
		s.metrics.NotifyFailure()
		out.NotifyErr = err
	}
	return out
}

func (s *Service) run(ctx context.Context, up Upload) (models.ProcessingResult, error) {
	var md *geo.Metadata
	err := s.stage(ctx, "geo", func(ctx context.Context) error {
		f, err := os.Open(up.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		md, err = geo.Extract(f)
		return err
	})
	if err != nil {
		return models.ProcessingResult{}, err
	}
	s.logger.Debug(ctx, "location found", "photo_id", up.PhotoID, "lat", md.Latitude, "lon", md.Longitude, "bearing_tag", md.BearingTag)

	data, err := os.ReadFile(up.Path)
	if err != nil {
		return models.ProcessingResult{}, err
	}

	err = s.stage(ctx, "admission", func(ctx context.Context) error {
		waited, err := s.gate.Admit(ctx)
		s.metrics.AdmissionWait(waited)
		return err
	})
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("admission: %w", err)
	}

	var anon *anonymize.Result
	err = s.stage(ctx, "anonymize", func(ctx context.Context) error {
		anon, err = s.anonymizer.Process(ctx, data)
		return err
	})
	if err != nil {
		return models.ProcessingResult{}, err
	}
	if anon.MetadataDropped {
		s.logger.Warn(ctx, "publishing without exif metadata", "photo_id", up.PhotoID, "filename", up.Filename)
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	if anon.Ext != "" {
		ext = anon.Ext
	}

	var variants []derivative.Variant
	defer func() { derivative.Remove(variants) }()
	err = s.stage(ctx, "derivatives", func(ctx context.Context) error {
		variants, err = s.generator.Generate(ctx, anon.Image, anon.Data, uuid.NewString(), ext)
		return err
	})
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("derivatives: %w", err)
	}

	var sizes map[string]models.SizeVariant
	err = s.stage(ctx, "store", func(ctx context.Context) error {
		sizes, err = s.publisher.Store(ctx, up.PhotoID, variants)
		return err
	})
	if err != nil {
		return models.ProcessingResult{}, err
	}

	detections := anon.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	lat, lon, bearing := md.Latitude, md.Longitude, md.Bearing

	return models.ProcessingResult{
		PhotoID:         up.PhotoID,
		Status:          models.ResultStatusCompleted,
		Filename:        up.Filename,
		Width:           anon.Width,
		Height:          anon.Height,
		Latitude:        &lat,
		Longitude:       &lon,
		CompassAngle:    &bearing,
		Altitude:        md.Altitude,
		CapturedAt:      md.CapturedAt,
		EXIFData:        md.Tags,
		Sizes:           sizes,
		DetectedObjects: detections,
		ClientSignature: up.ClientSignature,
	}, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStage(name, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
