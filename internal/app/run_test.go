package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.HoldSweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected unsupported storage driver error")
	}
}

func TestRun_GRPCListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "256.0.0.1:bad"
	cfg.MetricsAddr = "127.0.0.1:0"

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected listen error")
	}
}
