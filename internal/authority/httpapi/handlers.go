package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/authority/services"
	"github.com/gin-gonic/gin"
)

type registerKeyRequest struct {
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
	KeyID        string `json:"key_id" binding:"required"`
}

type registerKeyResponse struct {
	KeyID     string    `json:"key_id"`
	CreatedAt time.Time `json:"created_at"`
}

type authorizeRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	FileMD5     string `json:"file_md5"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

type authorizeResponse struct {
	UploadJWT          string    `json:"upload_jwt"`
	WorkerURL          string    `json:"worker_url"`
	PhotoID            string    `json:"photo_id"`
	ExpiresAt          time.Time `json:"expires_at"`
	UploadAuthorizedAt time.Time `json:"upload_authorized_at"`
}

type processedRequest struct {
	ProcessedData   json.RawMessage `json:"processed_data" binding:"required"`
	WorkerSignature string          `json:"worker_signature" binding:"required"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abort(c, status, "internal error")
		return
	}
	abort(c, status, err.Error())
}

func (s *HTTPServer) registerClientKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	key, err := s.keys.RegisterKey(c.Request.Context(), c.GetString(userIDKey), req.KeyID, req.PublicKeyPEM)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, registerKeyResponse{KeyID: key.KeyID, CreatedAt: key.CreatedAt})
}

func (s *HTTPServer) authorizeUpload(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.uploads.AuthorizeUpload(c.Request.Context(), c.GetString(userIDKey), services.AuthorizeRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
		FileMD5:     req.FileMD5,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, authorizeResponse{
		UploadJWT:          a.UploadJWT,
		WorkerURL:          a.WorkerURL,
		PhotoID:            a.PhotoID,
		ExpiresAt:          a.ExpiresAt,
		UploadAuthorizedAt: a.UploadAuthorizedAt,
	})
}

func (s *HTTPServer) processed(c *gin.Context) {
	var req processedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	photo, err := s.results.AcceptProcessed(c.Request.Context(), req.ProcessedData, req.WorkerSignature)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "accepted",
		"photo_id":     photo.ID,
		"photo_status": photo.Status,
	})
}
