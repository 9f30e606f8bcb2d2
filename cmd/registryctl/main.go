// Command registryctl inspects the document registry from a terminal.
package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"docregistry/internal/bootstrap"
	"docregistry/internal/config"
	"docregistry/internal/logging"
	"docregistry/internal/service"
)

func main() {
	a := &cliApp{}
	a.open = func(ctx context.Context) error {
		cfg := config.Load()
		// stdout carries command output; logs go to stderr.
		log := logging.New(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Location())
		b, err := bootstrap.Open(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		a.cleanup = b.Close
		a.registry = b.Registry
		a.svc = service.NewDocumentService(service.Options{
			Registry:        b.Registry,
			Journal:         b.Journal,
			Logger:          log,
			MaxFileSize:     cfg.Registration.MaxFileSize,
			ListParallelism: cfg.Registration.ListParallelism,
		})
		return nil
	}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
