package dto

type CreateBufferRequest struct {
	// Parent is the id of the buffer to read through; 0 creates a standalone
	// buffer with its own swap.
	Parent uint64 `json:"parent"`
	// Origin is "swap" (default) or "checker" for a read-only generated
	// pattern.
	Origin string `json:"origin" validate:"omitempty,oneof=swap checker"`
}

type BufferResponse struct {
	ID uint64 `json:"id"`
}

type TileURI struct {
	ID uint64 `validate:"required"`
	Z  int    `validate:"gte=0,lte=30"`
	X  int
	Y  int
}

type CacheStatsResponse struct {
	Len       int    `json:"len"`
	Capacity  int    `json:"capacity"`
	Dirty     int    `json:"dirty"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Flushes   uint64 `json:"flushes"`
	Evictions uint64 `json:"evictions"`
}

type HandlerResponse struct {
	Kind  string              `json:"kind"`
	Cache *CacheStatsResponse `json:"cache,omitempty"`
}
