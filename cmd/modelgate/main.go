package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelgate/modelgate/internal/app"
	"github.com/modelgate/modelgate/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{ConfigPath: *configPath}
	if *migrateOnly {
		if err := app.Migrate(ctx, opts); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		return
	}

	if err := app.RunServer(ctx, opts); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
