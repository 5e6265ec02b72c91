package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"paper-exchange/src/handlers"
	"paper-exchange/src/logger"
	"paper-exchange/src/routes"
	"paper-exchange/src/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.CloseLogger()

	s, closeSession, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSession(); err != nil {
			log.Error().Err(err).Msg("Error closing session")
		}
	}()

	app := routes.NewApp(cfg.Server, handlers.NewAccountHandler(s))
	addr := ":" + strconv.Itoa(cfg.Server.Port)

	serverError := make(chan error, 1)
	go func() {
		if err := app.Listen(addr); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("addr", addr).
		Int64("account_id", s.AccountID()).
		Msg("Paper exchange started")
	log.Info().
		Strs("endpoints", routes.Endpoints).
		Msg("API endpoints registered")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	select {
	case err := <-serverError:
		log.Error().
			Err(err).
			Str("addr", addr).
			Msg("Server failed to start, the port may be in use")
		return err
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.Server.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}

	if cfg.Store.Path != "" {
		if err := saveOnExit(s, cfg.Server.ShutdownTimeout); err != nil {
			log.Error().Err(err).Msg("Failed to save ledger")
		} else {
			log.Info().Msg("Ledger saved")
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

// saveOnExit gets its own deadline; the shutdown one may already be spent.
func saveOnExit(s *session.Session, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Save(ctx)
}
