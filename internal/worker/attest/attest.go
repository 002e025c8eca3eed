// Package attest signs processing results and delivers them to the
// Authority.
package attest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/netx"
)

const processedPath = "/photos/processed"

// Envelope is the body posted to the Authority.
type Envelope struct {
	ProcessedData   models.ProcessingResult `json:"processed_data"`
	WorkerSignature string                  `json:"worker_signature"`
}

// Ack is the Authority's reply to a delivered result.
type Ack struct {
	Status      string `json:"status"`
	PhotoID     string `json:"photo_id"`
	PhotoStatus string `json:"photo_status"`
}

type Attester struct {
	codec        *auth.Codec
	identity     string
	url          string
	client       *http.Client
	buildBackoff func() backoff.BackOff
	logger       logging.Logger
}

// New builds an Attester posting to authorityURL. A nil factory retries
// for up to the client timeout.
func New(codec *auth.Codec, identity, authorityURL string, timeout time.Duration, factory func() backoff.BackOff, logger logging.Logger) *Attester {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = timeout
			return b
		}
	}
	return &Attester{
		codec:        codec,
		identity:     identity,
		url:          strings.TrimRight(authorityURL, "/") + processedPath,
		client:       &http.Client{Timeout: timeout},
		buildBackoff: factory,
		logger:       logger.With("module", "attest"),
	}
}

func (a *Attester) Identity() string {
	return a.identity
}

// Notify signs result and posts it. Transport errors and 5xx/429 responses
// are retried; anything else fails immediately. Every failure wraps
// common.ErrNotifyFailed.
func (a *Attester) Notify(ctx context.Context, result models.ProcessingResult) (*Ack, error) {
	result.ProcessedBy = a.identity

	sig, err := a.codec.SignWorkerResult(result, a.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: sign result: %v", common.ErrNotifyFailed, err)
	}
	env := Envelope{ProcessedData: result, WorkerSignature: sig}

	var ack Ack
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := netx.PostJSON(ctx, a.client, a.url, env, &ack)
		if err == nil {
			return nil
		}

		var se *netx.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		a.logger.Warn(ctx, "notify attempt failed", "photo_id", result.PhotoID, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(a.buildBackoff(), ctx))

	if err != nil {
		a.logger.Error(ctx, "result not delivered", "photo_id", result.PhotoID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrNotifyFailed, err)
	}

	a.logger.Info(ctx, "result delivered", "photo_id", result.PhotoID, "status", result.Status, "photo_status", ack.PhotoStatus)
	return &ack, nil
}
