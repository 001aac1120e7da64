// Command mailrun runs the bulk email dispatch service: the upload and
// dashboard HTTP surface and the background send pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mailrun/mailrun/internal/bootstrap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailrun:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.IsDev)

	app, err := bootstrap.NewApp(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("mailrun starting", "services", cfg.Services, "dev", cfg.IsDev)
	return app.Run(context.Background())
}
