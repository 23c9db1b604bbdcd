package handler

import (
	"errors"
	"net/http"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/service"
	"inline-media-backend/internal/storage"
	"inline-media-backend/internal/viewer"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBusy), errors.Is(err, viewer.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidSwipe), errors.Is(err, config.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
