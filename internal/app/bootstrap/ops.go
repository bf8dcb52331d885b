package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/wolfman30/citas/internal/api/router"
	"github.com/wolfman30/citas/pkg/logging"
)

// OpsServer serves /healthz and /metrics next to the interactive client.
type OpsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
}

// StartOpsServer listens on addr and serves the ops router in the
// background. It returns nil when addr is empty.
func StartOpsServer(addr string, cfg *router.Config, logger *logging.Logger) (*OpsServer, error) {
	if addr == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ops := &OpsServer{
		srv: &http.Server{
			Handler:      router.New(cfg),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}
	go func() {
		logger.Info("ops server listening", "addr", ln.Addr().String())
		if err := ops.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()
	return ops, nil
}

// Addr returns the bound listen address.
func (o *OpsServer) Addr() string {
	if o == nil {
		return ""
	}
	return o.ln.Addr().String()
}

// Shutdown stops the server gracefully. A nil server is a no-op.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.logger.Info("shutting down ops server")
	return o.srv.Shutdown(ctx)
}
