package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

type loadMode string

const (
	// modeReserve держит холды до конца прогона: итоговый held равен принятому.
	modeReserve loadMode = "reserve"
	// modeReserveCommit сразу коммитит каждый принятый холд.
	modeReserveCommit loadMode = "reserve-commit"
	// modeOrder идёт через заказы: CreateOrder, затем PayOrder.
	modeOrder loadMode = "order"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	itemID      string
	stock       int64
	qty         int64
	runTag      string
	outputPath  string
}

// bounded: прогон ограничен числом сценариев, а не только временем.
func (c config) bounded() bool {
	return c.duration <= 0 || c.totalSet
}

func parseConfig(args []string) (config, error) {
	var (
		cfg  config
		mode string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "bookstore gRPC address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration acts as an upper bound")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "scenarios in flight")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC connections to spread calls over")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-call timeout")
	fs.StringVar(&mode, "mode", string(modeReserve), "reserve | reserve-commit | order")
	fs.StringVar(&cfg.itemID, "item", "book-load", "stock item all scenarios compete for")
	fs.Int64Var(&cfg.stock, "stock", 100, "stock to set before the run; 0 keeps what the item has")
	fs.Int64Var(&cfg.qty, "qty", 1, "copies per scenario")
	fs.StringVar(&cfg.runTag, "run-tag", "lt", "prefix for order and customer ids")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("parse flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) {
		cfg.totalSet = cfg.totalSet || f.Name == "total"
	})

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return config{}, err
	}
	cfg.itemID = strings.TrimSpace(cfg.itemID)
	cfg.runTag = strings.TrimSpace(cfg.runTag)

	switch {
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.totalSet && cfg.total <= 0:
		return config{}, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return config{}, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return config{}, errors.New("qty must be > 0")
	case cfg.stock < 0:
		return config{}, errors.New("stock must be >= 0")
	case cfg.itemID == "":
		return config{}, errors.New("item is required")
	case cfg.runTag == "":
		return config{}, errors.New("run-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeReserve, modeReserveCommit, modeOrder:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}
