// Command insurecalc runs calculations and manages the stored history from
// the terminal, using the same storage as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"insurecalc-backend/config"
	"insurecalc-backend/logging"
	"insurecalc-backend/repository"
	"insurecalc-backend/sandbox"
	"insurecalc-backend/service"
	"insurecalc-backend/storage"
)

// app carries what every subcommand needs. svc is built lazily from the
// environment unless already set.
type app struct {
	svc     *service.CalculationService
	closers []func() error
}

func main() {
	logging.Setup()
	config.LoadDotEnv()

	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "insurecalc",
		Short: "Split medical bills between insurer and patient",
		Long: `Split an initial amount between the insurer and the patient.

Available subcommands:
  manual  - Split using a percentage or a fixed insurer amount
  ai      - Split using natural-language insurance terms
  history - List, delete or clear past calculations
  key     - Remember, forget or inspect the stored Google API key`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if logLevel != "" {
				logging.SetupWithLevel(logging.ParseLevel(logLevel))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newManualCmd(a),
		newAICmd(a),
		newHistoryCmd(a),
		newKeyCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
	}

	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	a.svc = service.NewCalculationService(
		service.WithHistoryRepository(repository.NewHistoryRepository(store)),
		service.WithCredentialRepository(repository.NewCredentialRepository(store)),
		service.WithSplitPipeline(service.NewSplitPipeline(cfg.Generator())),
		service.WithExecutor(sandbox.NewExecutor(sandbox.WithTimeout(cfg.SandboxTimeout))),
		service.WithDefaultAPIKey(cfg.GeminiAPIKey),
	)
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// userError replaces err with the message a user of the form would see
func userError(err error) error {
	if err == nil {
		return nil
	}
	code, message, _ := service.Describe(err)
	if code == "INTERNAL_ERROR" {
		return err
	}
	return errors.New(message)
}
