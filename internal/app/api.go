package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/guide_helper/backend/tilestore/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/repository/swap"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

func Run(cfg *config.Config) {
	// the pid ties log lines to this process's swap files
	l := logger.NewZapLogger(logger.ZapOptions{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Fields: []any{"service", cfg.Telemetry.ServiceName, "pid", os.Getpid()},
	})
	defer l.Sync()

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Error("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracer(tctx); err != nil {
					l.Error("tracer shutdown failed", "error", err)
				}
			}()
		}
	}

	naming := swap.Naming{
		Dir:    config.ResolveSwapDir("", cfg.Swap.Dir),
		Prefix: cfg.Swap.Prefix,
		PID:    os.Getpid(),
	}
	if naming.Dir == "" {
		l.Warn("no usable swap directory, tiles are kept in RAM", "configured", cfg.Swap.Dir)
	} else {
		l.Info("swapping tiles", "dir", naming.Dir, "backend", cfg.Swap.Backend, "codec", cfg.Swap.Codec)
	}

	bufferUseCase := usecase.NewBufferUseCase(newBufferFactory(cfg, naming, l), l)

	validate := validator.New()
	handler := handler.NewHandler(validate, bufferUseCase, cfg.Tile.MaxZoom)
	router := v1.NewRouter(handler, l, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	serverErr := make(chan error, 1)
	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		l.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			l.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http_server shutdown completed")
	}

	if err := bufferUseCase.Close(shutdownCtx); err != nil {
		l.Error("failed to destroy buffers", "error", err)
	}

	if naming.Dir != "" {
		if n := swap.Cleanup(naming.Dir, naming.Prefix, naming.PID, l); n > 0 {
			l.Warn("removed leftover swap files", "count", n, "dir", naming.Dir)
		}
	}

	logSwapStats(l, bufferUseCase.SwapStats())

	l.Info("application shutdown completed")
}

func logSwapStats(l logger.Logger, stats []swap.Stats) {
	for _, s := range stats {
		l.Info("swap stats",
			"backend", s.Backend,
			"codec", s.Codec,
			"reads", humanize.Comma(int64(s.Reads)),
			"writes", humanize.Comma(int64(s.Writes)),
			"deletes", humanize.Comma(int64(s.Deletes)),
			"read", humanize.Bytes(s.BytesRead),
			"written", humanize.Bytes(s.BytesWritten),
		)
	}
}
