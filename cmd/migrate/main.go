package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/account"
	"filmbase.org/internal/config"
	"filmbase.org/internal/migrate"
	"filmbase.org/internal/obs"
	"filmbase.org/internal/store/pg"
)

func main() {
	logger := obs.NewLogger(os.Stderr, "logfmt", "info")
	if err := run(logger); err != nil {
		_ = level.Error(logger).Log("msg", "migrate failed", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	var (
		dsn     = flag.String("dsn", os.Getenv(config.Prefix+"PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		return fmt.Errorf("missing DSN: provide via -dsn or %sPG_DSN", config.Prefix)
	}
	if len(flag.Args()) == 0 {
		return fmt.Errorf("usage: migrate [up|down|status|seed]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrate.WithLogger(logger))

	switch cmd := flag.Arg(0); cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "status":
		v, err := mgr.Version(ctx)
		if err != nil {
			return err
		}
		files, err := mgr.Migrations()
		if err != nil {
			return err
		}
		fmt.Printf("version %d\n", v)
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	case "seed":
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		svc, err := account.NewService(store, account.WithLogger(logger))
		if err != nil {
			return err
		}
		seeded, err := svc.SeedDefaults(ctx, cfg.Seeds())
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "seed finished", "seeded", seeded)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
