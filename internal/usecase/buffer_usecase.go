package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/buffer"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/handler"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/repository/swap"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrBufferNotFound = errors.New("buffer not found")
	ErrBufferInUse    = errors.New("buffer is the source of another buffer")
	ErrTileNotFound   = errors.New("tile not found")
	ErrReadOnly       = errors.New("buffer is read-only")
	ErrUnknownOrigin  = errors.New("unknown buffer origin")
)

const (
	// OriginSwap buffers start empty and swap to their own store.
	OriginSwap = "swap"
	// OriginChecker buffers read a generated checkerboard and reject writes.
	OriginChecker = "checker"
)

type BufferSource struct {
	// Parent, when set, is read through and flushed into.
	Parent store.TileStore
	Origin string
}

type BufferFactory func(src BufferSource) (*buffer.Buffer, error)

type HandlerInfo struct {
	Kind  string
	Cache *handler.CacheStats
}

type entry struct {
	buf      *buffer.Buffer
	parent   uint64
	children int
	readOnly bool
}

type BufferUseCase struct {
	mu      sync.Mutex
	buffers map[uint64]*entry
	// swap statistics of destroyed buffers, per backend
	swapStats map[string]swap.Stats

	newBuffer BufferFactory
	tracer    trace.Tracer
	logger    logger.Logger
}

func NewBufferUseCase(factory BufferFactory, l logger.Logger) *BufferUseCase {
	return &BufferUseCase{
		buffers:   make(map[uint64]*entry),
		swapStats: make(map[string]swap.Stats),
		newBuffer: factory,
		tracer:    telemetry.Tracer(),
		logger:    logger.OrNop(l),
	}
}

func (uc *BufferUseCase) startSpan(ctx context.Context, name string, id uint64) (context.Context, trace.Span) {
	return uc.tracer.Start(ctx, "BufferUseCase."+name, trace.WithAttributes(attribute.Int64("buffer.id", int64(id))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateBuffer creates a buffer. A non-zero parent makes the new buffer read
// through, and flush into, that buffer; origin is then ignored.
func (uc *BufferUseCase) CreateBuffer(ctx context.Context, parent uint64, origin string) (id uint64, err error) {
	_, span := uc.startSpan(ctx, "CreateBuffer", parent)
	span.SetAttributes(attribute.String("buffer.origin", origin))
	defer func() { endSpan(span, err) }()

	if origin == "" {
		origin = OriginSwap
	}
	if origin != OriginSwap && origin != OriginChecker {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOrigin, origin)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	src := BufferSource{Origin: origin}
	readOnly := origin == OriginChecker
	if parent != 0 {
		p, ok := uc.buffers[parent]
		if !ok {
			return 0, fmt.Errorf("parent %d: %w", parent, ErrBufferNotFound)
		}
		// children flush into their parent on destroy
		if p.readOnly {
			return 0, fmt.Errorf("parent %d: %w", parent, ErrReadOnly)
		}
		src = BufferSource{Parent: p.buf}
		readOnly = false
	}

	b, err := uc.newBuffer(src)
	if err != nil {
		uc.logger.Error("failed to create buffer", "parent", parent, "origin", origin, "error", err)
		return 0, err
	}

	uc.buffers[b.ID()] = &entry{buf: b, parent: parent, readOnly: readOnly}
	if parent != 0 {
		uc.buffers[parent].children++
	}
	uc.logger.Info("buffer created", "id", b.ID(), "parent", parent)
	return b.ID(), nil
}

// DestroyBuffer flushes and closes a buffer. Buffers other buffers read from
// can not be destroyed before them.
func (uc *BufferUseCase) DestroyBuffer(ctx context.Context, id uint64) (err error) {
	_, span := uc.startSpan(ctx, "DestroyBuffer", id)
	defer func() { endSpan(span, err) }()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	e, ok := uc.buffers[id]
	if !ok {
		return ErrBufferNotFound
	}
	if e.children > 0 {
		return fmt.Errorf("buffer %d: %w", id, ErrBufferInUse)
	}
	return uc.destroyLocked(id, e)
}

// destroyLocked runs with mu held, so no parent can go away while a child
// flushes into it.
func (uc *BufferUseCase) destroyLocked(id uint64, e *entry) error {
	delete(uc.buffers, id)
	if p, ok := uc.buffers[e.parent]; ok {
		p.children--
	}

	err := e.buf.Close()
	if s, ok := e.buf.Source().(*swap.Store); ok {
		uc.addSwapStats(s.Stats())
	}
	if err != nil {
		uc.logger.Error("buffer closed with errors", "id", id, "error", err)
		return err
	}
	uc.logger.Info("buffer destroyed", "id", id)
	return nil
}

func (uc *BufferUseCase) addSwapStats(s swap.Stats) {
	total := uc.swapStats[s.Backend]
	total.Backend = s.Backend
	total.Codec = s.Codec
	total.Reads += s.Reads
	total.Writes += s.Writes
	total.Deletes += s.Deletes
	total.BytesRead += s.BytesRead
	total.BytesWritten += s.BytesWritten
	uc.swapStats[s.Backend] = total
}

func (uc *BufferUseCase) get(id uint64) (*entry, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	e, ok := uc.buffers[id]
	if !ok {
		return nil, ErrBufferNotFound
	}
	return e, nil
}

func (uc *BufferUseCase) GetTile(ctx context.Context, id uint64, c tile.Coord) (data []byte, err error) {
	_, span := uc.startSpan(ctx, "GetTile", id)
	span.SetAttributes(attribute.String("tile.coord", c.String()))
	defer func() { endSpan(span, err) }()

	e, err := uc.get(id)
	if err != nil {
		return nil, err
	}

	t, err := e.buf.Request(c)
	if err != nil {
		uc.logger.Error("failed to get tile", "buffer", id, "coord", c, "error", err)
		return nil, err
	}
	if t == nil {
		return nil, ErrTileNotFound
	}
	data = t.Bytes()
	if err := t.Unref(); err != nil {
		uc.logger.Warn("failed to release tile", "buffer", id, "coord", c, "error", err)
	}
	return data, nil
}

func (uc *BufferUseCase) PutTile(ctx context.Context, id uint64, c tile.Coord, data []byte) (err error) {
	_, span := uc.startSpan(ctx, "PutTile", id)
	span.SetAttributes(attribute.String("tile.coord", c.String()), attribute.Int("tile.size", len(data)))
	defer func() { endSpan(span, err) }()

	e, err := uc.get(id)
	if err != nil {
		return err
	}
	if e.readOnly {
		return ErrReadOnly
	}
	if err := e.buf.Put(c, data); err != nil {
		uc.logger.Error("failed to put tile", "buffer", id, "coord", c, "error", err)
		return err
	}
	return nil
}

func (uc *BufferUseCase) Flush(ctx context.Context, id uint64) (err error) {
	_, span := uc.startSpan(ctx, "Flush", id)
	defer func() { endSpan(span, err) }()

	e, err := uc.get(id)
	if err != nil {
		return err
	}
	return e.buf.Flush()
}

func (uc *BufferUseCase) Handlers(ctx context.Context, id uint64) ([]HandlerInfo, error) {
	e, err := uc.get(id)
	if err != nil {
		return nil, err
	}

	var infos []HandlerInfo
	for _, h := range e.buf.Handlers() {
		info := HandlerInfo{Kind: string(h.Kind())}
		if c, ok := h.(*handler.Cache); ok {
			stats := c.Stats()
			info.Cache = &stats
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SwapStats returns the swap statistics of every destroyed buffer, summed
// per backend.
func (uc *BufferUseCase) SwapStats() []swap.Stats {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	stats := make([]swap.Stats, 0, len(uc.swapStats))
	for _, s := range uc.swapStats {
		stats = append(stats, s)
	}
	slices.SortFunc(stats, func(a, b swap.Stats) int {
		return cmp.Compare(a.Backend, b.Backend)
	})
	return stats
}

// Close destroys every buffer, newest first so that nested buffers flush
// into parents that are still open.
func (uc *BufferUseCase) Close(ctx context.Context) (err error) {
	_, span := uc.startSpan(ctx, "Close", 0)
	defer func() { endSpan(span, err) }()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	ids := make([]uint64, 0, len(uc.buffers))
	for id := range uc.buffers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)

	var errs []error
	for _, id := range ids {
		if err := uc.destroyLocked(id, uc.buffers[id]); err != nil {
			errs = append(errs, fmt.Errorf("buffer %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
