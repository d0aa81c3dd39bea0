package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/edubounty/edubounty/internal/app"
	"github.com/edubounty/edubounty/internal/config"
)

func main() {
	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		panic(err)
	}

	logs, err := app.NewLoggers(&cfg)
	if err != nil {
		panic(err)
	}
	log := logs.App
	defer logs.Sync()

	log.Infof("edubounty %s", config.BuildVersion)
	log.Debugf("config: %+v", cfg.GetSanitized())

	ctx, cancel := context.WithCancel(context.Background())

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	application, cleanup, err := app.InitApp(ctx, &cfg, logs)
	if err != nil {
		log.Errorf("failed to start: %s", err)
		logs.Sync()
		os.Exit(1)
	}
	defer cleanup()

	err = application.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("App exited due to %s", err)
		return
	}
	log.Infof("App exited due to %s", err)
}
