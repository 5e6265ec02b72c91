package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"paper-exchange/src/engine"
	"paper-exchange/src/feed"
	"paper-exchange/src/logger"
	"paper-exchange/src/session"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded quotes against a list of orders",
	Long: `Replay submits every order from the orders CSV, then feeds the quotes CSV
to the exchange one snapshot at a time and prints a summary.

Examples:
  paper-exchange replay --orders orders.csv --quotes quotes.csv
  paper-exchange replay -c account.yaml --orders orders.csv --quotes quotes.csv --roll-days`,
	RunE: runReplay,
}

var (
	replayOrdersPath string
	replayQuotesPath string
	replayRollDays   bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayOrdersPath, "orders", "o", "", "orders CSV (code,side,type,price,qty) (required)")
	replayCmd.Flags().StringVarP(&replayQuotesPath, "quotes", "q", "", "quotes CSV (code,date,time,asks,bids) (required)")
	replayCmd.Flags().BoolVar(&replayRollDays, "roll-days", false, "run a day roll whenever the quote date changes")

	_ = replayCmd.MarkFlagRequired("orders")
	_ = replayCmd.MarkFlagRequired("quotes")
}

// ReplaySummary is what a replay prints when it finishes.
type ReplaySummary struct {
	Orders    int
	Rejected  int
	Quotes    int
	Trades    int
	Refused   int
	DayRolls  int
	Cash      int64
	Frozen    int64
	Positions int
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.CloseLogger()

	orders, err := os.Open(replayOrdersPath)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	defer orders.Close()

	quotes, err := os.Open(replayQuotesPath)
	if err != nil {
		return fmt.Errorf("open quotes: %w", err)
	}
	defer quotes.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, closeSession, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSession(); err != nil {
			log.Error().Err(err).Msg("Error closing session")
		}
	}()

	summary, err := Replay(ctx, s, orders, quotes, replayRollDays)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

// Replay submits the orders, then processes the quotes in file order.
func Replay(ctx context.Context, s *session.Session, orders, quotes io.Reader, rollDays bool) (ReplaySummary, error) {
	var summary ReplaySummary

	reqs, err := feed.ReadOrders(orders, s.AccountID())
	if err != nil {
		return summary, err
	}
	for _, req := range reqs {
		order, err := s.SubmitOrder(ctx, req)
		if err != nil {
			return summary, fmt.Errorf("submit %s: %w", req.Code, err)
		}
		summary.Orders++
		if order.Terminal() {
			summary.Rejected++
		}
	}

	qr := feed.NewQuoteReader(quotes, nil)
	var lastDay string
	for {
		quote, err := qr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}

		day := quote.Time.Format("20060102")
		if rollDays && lastDay != "" && day != lastDay {
			if _, err := s.DayRoll(ctx); err != nil {
				return summary, err
			}
			summary.DayRolls++
		}
		lastDay = day

		result, err := s.ProcessQuote(ctx, quote)
		if err != nil {
			return summary, err
		}
		summary.Quotes++
		summary.Trades += len(result.Settled)
		summary.Refused += len(result.Rejected)
	}

	cash, err := s.Ledger.GetCash(engine.QueryCash{AccountID: s.AccountID()})
	if err != nil {
		return summary, err
	}
	summary.Cash = cash.Available
	summary.Frozen = cash.Frozen
	summary.Positions = len(s.Ledger.Positions())

	log.Info().
		Int("orders", summary.Orders).
		Int("rejected", summary.Rejected).
		Int("quotes", summary.Quotes).
		Int("trades", summary.Trades).
		Msg("Replay finished")
	return summary, nil
}

func printSummary(w io.Writer, s ReplaySummary) {
	fmt.Fprintf(w, "orders:    %d (%d rejected)\n", s.Orders, s.Rejected)
	fmt.Fprintf(w, "quotes:    %d\n", s.Quotes)
	fmt.Fprintf(w, "trades:    %d settled, %d refused\n", s.Trades, s.Refused)
	if s.DayRolls > 0 {
		fmt.Fprintf(w, "day rolls: %d\n", s.DayRolls)
	}
	fmt.Fprintf(w, "cash:      %s available, %s frozen\n", feed.FormatPrice(s.Cash), feed.FormatPrice(s.Frozen))
	fmt.Fprintf(w, "positions: %d\n", s.Positions)
}
