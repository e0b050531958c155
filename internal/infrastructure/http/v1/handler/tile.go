package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

// maxTileBody bounds PUT bodies; larger tiles are rejected by the buffer anyway.
const maxTileBody = 16 << 20

func (h *Handler) tileURI(c *gin.Context) (dto.TileURI, bool) {
	l := requestLogger(c)
	var uri dto.TileURI

	id, ok := h.bufferID(c)
	if !ok {
		return uri, false
	}
	uri.ID = id

	for _, p := range []struct {
		name string
		dst  *int
	}{{"z", &uri.Z}, {"x", &uri.X}, {"y", &uri.Y}} {
		str := c.Param(p.name)
		v, err := strconv.Atoi(str)
		if err != nil {
			l.Warn("invalid "+p.name+" parameter", p.name, str, "error", err)
			h.RespondWithJSON(c, http.StatusBadRequest, p.name+" should be integer", nil)
			return uri, false
		}
		*p.dst = v
	}

	if err := h.validate.Struct(uri); err != nil {
		l.Warn("invalid tile address", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return uri, false
	}
	if uri.Z > h.maxZoom {
		l.Warn("zoom level above maximum", "z", uri.Z, "max", h.maxZoom)
		h.RespondWithJSON(c, http.StatusBadRequest, fmt.Sprintf("z should be at most %d", h.maxZoom), nil)
		return uri, false
	}
	return uri, true
}

func (h *Handler) GetTile(c *gin.Context) {
	uri, ok := h.tileURI(c)
	if !ok {
		return
	}

	data, err := h.bufferUseCase.GetTile(c.Request.Context(), uri.ID, tile.Coord{X: uri.X, Y: uri.Y, Z: uri.Z})
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (h *Handler) PutTile(c *gin.Context) {
	uri, ok := h.tileURI(c)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxTileBody))
	if err != nil {
		h.RespondWithJSON(c, http.StatusRequestEntityTooLarge, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}

	err = h.bufferUseCase.PutTile(c.Request.Context(), uri.ID, tile.Coord{X: uri.X, Y: uri.Y, Z: uri.Z}, data)
	if errors.Is(err, tile.ErrSizeMismatch) {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "tile stored", nil)
}
