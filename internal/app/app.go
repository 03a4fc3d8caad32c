// Package app 组装依赖并运行 http 服务
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowvp/vigil/internal/conf"
)

// Run 阻塞直到 ctx 结束，随后依次停止 http 服务、录制与监控
func Run(ctx context.Context, bc *conf.Bootstrap) error {
	handler, cleanUp, err := wireApp(bc)
	if err != nil {
		return fmt.Errorf("wire app: %w", err)
	}
	defer cleanUp()

	timeout := bc.Server.HTTP.Timeout.Duration()
	svr := http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// websocket 与 HLS 是长连接，不设置 WriteTimeout
		ReadTimeout: timeout,
		IdleTimeout: 2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server started", "port", bc.Server.HTTP.Port)
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svr.Shutdown(sctx); err != nil {
		slog.Error("http server shutdown", "err", err)
	}
	return nil
}
