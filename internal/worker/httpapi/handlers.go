package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/filex"
	"github.com/dmitrijs2005/geoupload/internal/worker/ingest"
	"github.com/dmitrijs2005/geoupload/internal/worker/pipeline"
	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the file size limit for form
// fields and boundaries.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	PhotoID           string `json:"photo_id,omitempty"`
	Error             string `json:"error,omitempty"`
	RetryAfterMinutes *int   `json:"retry_after_minutes"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) reject(c *gin.Context, status int, photoID, msg string) {
	s.metrics.Upload("rejected")
	c.AbortWithStatusJSON(status, uploadResponse{Success: false, Message: msg, PhotoID: photoID, Error: msg})
}

func (s *HTTPServer) upload(c *gin.Context) {
	ctx := c.Request.Context()

	token, ok := strings.CutPrefix(c.GetHeader(common.AuthorizationHeaderName), common.BearerPrefix)
	if !ok || token == "" {
		s.reject(c, http.StatusUnauthorized, "", "missing upload token")
		return
	}
	claims, err := s.codec.VerifyUploadAuthorization(token)
	if err != nil {
		s.reject(c, http.StatusUnauthorized, "", err.Error())
		return
	}

	photoID, err := ingest.ValidateIdentifier("photo_id", claims.PhotoID)
	if err != nil {
		s.reject(c, http.StatusBadRequest, "", err.Error())
		return
	}
	userID, err := ingest.ValidateIdentifier("user_id", claims.UserID)
	if err != nil {
		s.reject(c, http.StatusBadRequest, photoID, err.Error())
		return
	}
	keyID, err := ingest.ValidateIdentifier("client_public_key_id", claims.ClientPublicKeyID)
	if err != nil {
		s.reject(c, http.StatusBadRequest, photoID, err.Error())
		return
	}

	if s.policy.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.policy.MaxBytes+multipartOverhead)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.reject(c, http.StatusBadRequest, photoID, "File too large")
			return
		}
		s.reject(c, http.StatusBadRequest, photoID, "No file provided")
		return
	}

	signature := strings.TrimSpace(c.PostForm("client_signature"))
	if signature == "" {
		s.reject(c, http.StatusBadRequest, photoID, "client_signature is required")
		return
	}

	safeName, err := s.policy.CheckUpload(fh.Filename, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		s.reject(c, http.StatusBadRequest, photoID, err.Error())
		return
	}

	path, err := filex.SafeJoin(s.workDir, ingest.SecureFilename(safeName, userID))
	if err != nil {
		s.reject(c, http.StatusBadRequest, photoID, err.Error())
		return
	}
	if err := c.SaveUploadedFile(fh, path); err != nil {
		s.logger.Error(ctx, "saving upload failed", "photo_id", photoID, "error", err)
		s.reject(c, http.StatusInternalServerError, photoID, "could not store upload")
		return
	}
	if _, err := s.policy.VerifyContent(path); err != nil {
		s.reject(c, http.StatusBadRequest, photoID, err.Error())
		return
	}

	s.logger.Info(ctx, "upload accepted", "photo_id", photoID, "user_id", userID, "filename", safeName, "size", fh.Size)

	out := s.processor.Process(ctx, pipeline.Upload{
		PhotoID:         photoID,
		UserID:          userID,
		ClientKeyID:     keyID,
		Filename:        safeName,
		ClientSignature: signature,
		Path:            path,
	})

	r := out.Result
	if out.NotifyErr != nil {
		c.JSON(http.StatusBadGateway, uploadResponse{
			Success: false,
			Message: "Photo processed but the authority could not be notified",
			PhotoID: photoID,
			Error:   out.NotifyErr.Error(),
		})
		return
	}
	if !r.Completed() {
		c.JSON(http.StatusOK, uploadResponse{
			Success:           false,
			Message:           "Photo processing failed",
			PhotoID:           photoID,
			Error:             r.Error,
			RetryAfterMinutes: r.RetryAfterMinutes,
		})
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Success: true, Message: "Photo processed successfully", PhotoID: photoID})
}
