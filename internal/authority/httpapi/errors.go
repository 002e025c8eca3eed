package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/geoupload/internal/common"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrInvalidPublicKey),
		errors.Is(err, common.ErrNoActiveKey):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidTokenType),
		errors.Is(err, common.ErrMissingClaim):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
