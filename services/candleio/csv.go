package candleio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"backsim/services/engine"
)

// ReadCSV loads candles from a timestamp,open,high,low,close,volume file.
// Prices are parsed through decimal so exchange exports with more fractional
// digits than float64 prints survive the round trip unchanged. Rows are
// sorted by timestamp and duplicate timestamps keep the last row.
func ReadCSV(path string) ([]engine.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle csv: %w", err)
	}
	defer file.Close()
	return ParseCSV(file)
}

// ParseCSV reads candle rows from r. A header row is skipped when the first
// field is not numeric.
func ParseCSV(r io.Reader) ([]engine.Candle, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	candles := make([]engine.Candle, 0, 1_000)
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 5 {
			return nil, &engine.DataError{Reason: fmt.Sprintf("csv line %d: expected at least 5 fields, got %d", line, len(rec))}
		}

		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff")
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, &engine.DataError{Reason: fmt.Sprintf("csv line %d: bad timestamp %q", line, tsStr)}
		}

		var prices [4]float64
		for i := 0; i < 4; i++ {
			d, err := decimal.NewFromString(strings.TrimSpace(rec[i+1]))
			if err != nil {
				return nil, &engine.DataError{
					Reason:    fmt.Sprintf("csv line %d: bad price %q", line, rec[i+1]),
					Timestamp: ts,
				}
			}
			prices[i] = d.InexactFloat64()
		}
		volume := 0.0
		if len(rec) > 5 {
			if d, err := decimal.NewFromString(strings.TrimSpace(rec[5])); err == nil {
				volume = d.InexactFloat64()
			}
		}

		candles = append(candles, engine.Candle{
			Timestamp: ts,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    volume,
		})
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 && out[n-1].Timestamp == c.Timestamp {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
