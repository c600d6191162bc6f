package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/app"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/logging"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.GoEnv, cfg.LogLevel).With("component", "scheduler")

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

	// 秒ありの cron。前回が終わっていなければ重ねて走らせない
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	// 定期便の配送日が来たものを注文にする
	if _, err := c.AddFunc(cfg.SchedulerSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		res, err := a.Subscriptions.RunDue(ctx, time.Now().UTC())
		if err != nil {
			log.Error("run due failed", "error", err)
			return
		}
		log.Info("run due finished",
			"subscriptions", res.Subscriptions,
			"deliveries", res.Deliveries,
			"orders", res.Orders,
			"locked", res.Locked,
			"failures", len(res.Failures))
	}); err != nil {
		log.Error("invalid SCHEDULER_SPEC", "spec", cfg.SchedulerSpec, "error", err)
		os.Exit(1)
	}

	// 期限切れの紹介を expired にする（毎日 03:00）
	if _, err := c.AddFunc("0 0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		n, err := a.Rewards.ExpireReferrals(ctx)
		if err != nil {
			log.Error("expire referrals failed", "error", err)
			return
		}
		log.Info("referrals expired", "count", n)
	}); err != nil {
		log.Error("add job failed", "error", err)
		os.Exit(1)
	}

	c.Start()
	log.Info("scheduler started", "spec", cfg.SchedulerSpec)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx := c.Stop()
	select {
	case <-ctx.Done():
		log.Info("jobs stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn("jobs forced to stop after timeout")
	}
}
