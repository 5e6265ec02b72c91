package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"paper-exchange/src/config"
	"paper-exchange/src/engine"
	"paper-exchange/src/journal"
	"paper-exchange/src/ledger"
	"paper-exchange/src/session"
	"paper-exchange/src/store"
)

// openSession wires the ledger, exchange, journal and store the config asks
// for. A stored ledger for the account replaces the configured seed. The
// returned close func releases the journal and store.
func openSession(ctx context.Context, cfg *config.Config) (*session.Session, func() error, error) {
	var (
		opts    []session.Option
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if cfg.Journal.Path != "" {
		j, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, j.Close)
		opts = append(opts, session.WithJournal(j))
		log.Info().Str("path", cfg.Journal.Path).Str("run_id", j.RunID()).Msg("Journal opened")
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		var err error
		if st, err = store.Open(cfg.Store.Path); err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		closers = append(closers, st.Close)
		opts = append(opts, session.WithStore(st))
	}

	s := session.New(ledger.New(cfg.LedgerConfig()), engine.NewExchange(nil), opts...)

	if st != nil {
		restored, err := s.Restore(ctx)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("restore ledger: %w", err)
		}
		if !restored {
			log.Info().Int64("account_id", s.AccountID()).Msg("No stored ledger, starting from config")
		}
	}

	return s, closeAll, nil
}
