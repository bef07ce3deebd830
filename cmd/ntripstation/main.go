package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/ntripstation/pkg/admin"
	"github.com/bramburn/ntripstation/pkg/config"
	"github.com/bramburn/ntripstation/pkg/listener"
	"github.com/bramburn/ntripstation/pkg/registry"
)

func main() {
	configPath := flag.String("config", "ntripstation.json", "path to the server config file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	sweepSpec := flag.String("sweep-schedule", "", "cron schedule for registry sweeps (default: every 6h)")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store, err := config.NewStore(*configPath, logger)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := store.StartFileWatch(); err != nil {
		logger.Fatalf("failed to start config file watch: %v", err)
	}
	defer store.Stop()

	reg := registry.New()
	stopSweep, err := reg.StartSweeper(*sweepSpec, logger)
	if err != nil {
		logger.Fatalf("failed to start registry sweeper: %v", err)
	}
	defer stopSweep()

	l := listener.New(store, reg, logger)
	if err := l.Start(); err != nil {
		logger.Fatalf("failed to start listener: %v", err)
	}
	defer l.Stop()

	cfg := store.Get()
	var adminSrv *admin.Server
	if cfg.AdminPort != 0 {
		addr := cfg.Interface + ":" + strconv.Itoa(cfg.AdminPort)
		adminSrv = admin.New(addr, store, reg, logger)
		go func() {
			logger.WithField("addr", addr).Info("admin API listening")
			if err := adminSrv.ListenAndServe(); err != nil {
				logger.WithError(err).Info("admin API stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down ntripstation...")
	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("error shutting down admin API")
		}
	}
}
