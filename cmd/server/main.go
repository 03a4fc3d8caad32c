package main

import (
	"context"
	"expvar"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gowvp/vigil/internal/app"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
)

var (
	buildVersion = "0.0.1"
	gitBranch    = "dev"
	gitHash      = "debug"
)

func main() {
	configPath := flag.String("conf", filepath.Join(system.Getwd(), "configs", "config.toml"), "config file path")
	flag.Parse()

	publish("version", buildVersion)
	publish("git_branch", gitBranch)
	publish("git_hash", gitHash)

	bc, err := conf.SetupConfig(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion
	slog.SetDefault(newLogger(bc.Log, bc.Debug))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, &bc); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// publish 重复注册会 panic
func publish(name, value string) {
	if expvar.Get(name) == nil {
		expvar.NewString(name).Set(value)
	}
}

func newLogger(c conf.Log, debug bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := slog.HandlerOptions{Level: level, AddSource: debug}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}
