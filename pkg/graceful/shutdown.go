package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockline/stockline_service/pkg/logger"
)

const DefaultTimeout = 30 * time.Second

// Shutdowner is a component stopped after the HTTP server drains.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a plain function to Shutdowner.
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }

type component struct {
	name string
	s    Shutdowner
}

type ShutdownManager struct {
	server     *http.Server
	components []component
	timeout    time.Duration
	logger     *logger.Logger
}

func NewShutdownManager(server *http.Server, timeout time.Duration, logger *logger.Logger) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ShutdownManager{
		server:  server,
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a component. Components stop in registration order.
func (sm *ShutdownManager) Register(name string, s Shutdowner) {
	sm.components = append(sm.components, component{name: name, s: s})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx is done, then shuts down.
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		sm.logger.Info("Shutting down gracefully...", "signal", sig.String())
	case <-ctx.Done():
		sm.logger.Info("Shutting down gracefully...", "reason", ctx.Err())
	}

	sm.Shutdown()
}

// Shutdown drains the server, then stops every registered component within
// the shared timeout.
func (sm *ShutdownManager) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.Error("Server forced shutdown", "error", err)
		}
	}

	for _, c := range sm.components {
		if err := c.s.Shutdown(ctx); err != nil {
			sm.logger.Warn("Component shutdown error", "component", c.name, "error", err)
		}
	}

	sm.logger.Info("Shutdown complete")
}
