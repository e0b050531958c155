package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/infrastructure/http/v1/dto"
)

func (h *Handler) CreateBuffer(c *gin.Context) {
	var req dto.CreateBufferRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	id, err := h.bufferUseCase.CreateBuffer(c.Request.Context(), req.Parent, req.Origin)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusCreated, "buffer created", dto.BufferResponse{ID: id})
}

func (h *Handler) DestroyBuffer(c *gin.Context) {
	id, ok := h.bufferID(c)
	if !ok {
		return
	}
	if err := h.bufferUseCase.DestroyBuffer(c.Request.Context(), id); err != nil {
		h.respondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "buffer destroyed", nil)
}

func (h *Handler) Flush(c *gin.Context) {
	id, ok := h.bufferID(c)
	if !ok {
		return
	}
	if err := h.bufferUseCase.Flush(c.Request.Context(), id); err != nil {
		h.respondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "buffer flushed", nil)
}

func (h *Handler) Handlers(c *gin.Context) {
	id, ok := h.bufferID(c)
	if !ok {
		return
	}
	infos, err := h.bufferUseCase.Handlers(c.Request.Context(), id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	resp := make([]dto.HandlerResponse, 0, len(infos))
	for _, info := range infos {
		r := dto.HandlerResponse{Kind: info.Kind}
		if s := info.Cache; s != nil {
			r.Cache = &dto.CacheStatsResponse{
				Len:       s.Len,
				Capacity:  s.Capacity,
				Dirty:     s.Dirty,
				Hits:      s.Hits,
				Misses:    s.Misses,
				Flushes:   s.Flushes,
				Evictions: s.Evictions,
			}
		}
		resp = append(resp, r)
	}
	h.RespondWithJSON(c, http.StatusOK, "handlers", resp)
}

func (h *Handler) bufferID(c *gin.Context) (uint64, bool) {
	strID := c.Param("id")
	id, err := strconv.ParseUint(strID, 10, 64)
	if err != nil || id == 0 {
		requestLogger(c).Warn("invalid buffer id", "id", strID, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "id should be a positive integer", nil)
		return 0, false
	}
	return id, true
}
