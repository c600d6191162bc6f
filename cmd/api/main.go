package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/app"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/logging"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// .env は無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireAPI(); err != nil {
		panic(err)
	}
	log := logging.New(cfg.GoEnv, cfg.LogLevel)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	if err := server.Start(ctx, addr, a); err != nil {
		log.Error("server stopped", "error", err)
		return
	}
	log.Info("server stopped gracefully")
}
