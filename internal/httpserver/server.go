// Package httpserver runs an http.Handler bound to a URL with graceful
// shutdown tied to context cancellation.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockpile-io/stockpile/internal/log"
)

const ShutdownGracePeriod = time.Second * 5

// Serve listens on bind and serves handler until ctx is cancelled, then
// drains in-flight requests for up to ShutdownGracePeriod.
func Serve(ctx context.Context, bind *url.URL, handler http.Handler) error {
	logger := log.FromContext(ctx)

	listener, err := net.Listen("tcp", bind.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", bind, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 30,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Debugf("Listening on %s", bind)
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server terminated: %w", err)
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGracePeriod)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})
	return group.Wait()
}
