// Package feed reads quote snapshots and order lists from CSV files.
//
// Quote rows are `code,date,time,asks,bids`. date is YYYYMMDD, time is
// HHMMSSmmm, and each side is a `|` separated list of `price:volume` levels
// (asks ascending, bids descending). Order rows are `code,side,type,price,qty`.
// Prices are decimal strings converted to engine.PriceScale minor units.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paper-exchange/src/engine"
)

var ErrMalformed = errors.New("malformed row")

var scale = decimal.NewFromInt(engine.PriceScale)

// ParsePrice converts a decimal price string to minor units. Digits past the
// scale are rejected rather than rounded.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	scaled := d.Mul(scale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("price %q: finer than 1/%d", s, engine.PriceScale)
	}
	if scaled.IsNegative() {
		return 0, fmt.Errorf("price %q: negative", s)
	}
	return scaled.IntPart(), nil
}

// FormatPrice renders minor units as a decimal string.
func FormatPrice(v int64) string {
	return decimal.New(v, 0).Div(scale).String()
}

// Combine joins a YYYYMMDD date and a HHMMSSmmm time of day.
func Combine(date, clock int64, loc *time.Location) (time.Time, error) {
	day := int(date % 100)
	month := int(date / 100 % 100)
	year := int(date / 10000)
	ms := int(clock % 1000)
	second := int(clock / 1000 % 100)
	minute := int(clock / 100_000 % 100)
	hour := int(clock / 10_000_000)

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: date=%d time=%d", ErrMalformed, date, clock)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, ms*int(time.Millisecond), loc), nil
}

func parseLevels(s string) ([]engine.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "|")
	levels := make([]engine.Level, 0, len(parts))
	for _, part := range parts {
		price, volume, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: level %q", ErrMalformed, part)
		}
		p, err := ParsePrice(price)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(volume), 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: volume %q", ErrMalformed, volume)
		}
		levels = append(levels, engine.Level{Price: p, Volume: v})
	}
	return levels, nil
}

// QuoteReader streams quotes from CSV.
type QuoteReader struct {
	r   *csv.Reader
	loc *time.Location
	row int
}

func NewQuoteReader(r io.Reader, loc *time.Location) *QuoteReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	if loc == nil {
		loc = time.Local
	}
	return &QuoteReader{r: cr, loc: loc}
}

// Next returns io.EOF after the last quote. A header row starting with
// "code" is skipped.
func (q *QuoteReader) Next() (*engine.Quote, error) {
	for {
		rec, err := q.r.Read()
		if err != nil {
			return nil, err
		}
		q.row++
		if q.row == 1 && strings.EqualFold(rec[0], "code") {
			continue
		}
		quote, err := q.parse(rec)
		if err != nil {
			return nil, fmt.Errorf("quote row %d: %w", q.row, err)
		}
		return quote, nil
	}
}

func (q *QuoteReader) parse(rec []string) (*engine.Quote, error) {
	date, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrMalformed, rec[1])
	}
	clock, err := strconv.ParseInt(rec[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: time %q", ErrMalformed, rec[2])
	}
	at, err := Combine(date, clock, q.loc)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(rec[3])
	if err != nil {
		return nil, err
	}
	bids, err := parseLevels(rec[4])
	if err != nil {
		return nil, err
	}
	return &engine.Quote{Code: strings.TrimSpace(rec[0]), Time: at, Asks: asks, Bids: bids}, nil
}

// ReadQuotes loads every quote.
func ReadQuotes(r io.Reader, loc *time.Location) ([]*engine.Quote, error) {
	qr := NewQuoteReader(r, loc)
	var quotes []*engine.Quote
	for {
		quote, err := qr.Next()
		if errors.Is(err, io.EOF) {
			return quotes, nil
		}
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
}

// ReadOrders loads order requests for accountID.
func ReadOrders(r io.Reader, accountID int64) ([]engine.SubmitOrderRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	reqs := make([]engine.SubmitOrderRequest, 0, len(records))
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "code") {
			continue
		}
		side, err := engine.ParseSide(rec[1])
		if err != nil {
			return nil, fmt.Errorf("order row %d: %w", i+1, err)
		}
		typ, err := engine.ParseOrderType(rec[2])
		if err != nil {
			return nil, fmt.Errorf("order row %d: %w", i+1, err)
		}
		price, err := ParsePrice(rec[3])
		if err != nil {
			return nil, fmt.Errorf("order row %d: %w", i+1, err)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(rec[4]), 10, 64)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("order row %d: %w: qty %q", i+1, ErrMalformed, rec[4])
		}
		reqs = append(reqs, engine.SubmitOrderRequest{
			AccountID: accountID,
			Code:      strings.TrimSpace(rec[0]),
			Qty:       qty,
			Price:     price,
			Type:      typ,
			Side:      side,
			Time:      time.Now(),
		})
	}
	return reqs, nil
}
