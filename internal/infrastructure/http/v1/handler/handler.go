package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/buffer"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate      *validator.Validate
	bufferUseCase *usecase.BufferUseCase
	// maxZoom bounds the z of tile addresses.
	maxZoom int
}

func NewHandler(v *validator.Validate, uc *usecase.BufferUseCase, maxZoom int) *Handler {
	return &Handler{
		validate:      v,
		bufferUseCase: uc,
		maxZoom:       maxZoom,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

// respondWithError maps usecase errors onto status codes.
func (h *Handler) respondWithError(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, usecase.ErrBufferNotFound), errors.Is(err, usecase.ErrTileNotFound):
		h.RespondWithJSON(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, usecase.ErrUnknownOrigin), errors.Is(err, buffer.ErrInvalidCoord):
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, usecase.ErrBufferInUse), errors.Is(err, usecase.ErrReadOnly):
		h.RespondWithJSON(c, http.StatusConflict, err.Error(), nil)
	default:
		requestLogger(c).Error("request failed", "error", err)
		h.RespondWithInternalServerError(c)
	}
}

func requestLogger(c *gin.Context) logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if l, ok := l.(logger.Logger); ok {
			return l
		}
	}
	return logger.Nop()
}
