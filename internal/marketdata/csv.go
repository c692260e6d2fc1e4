package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dstolz/tradesim/internal/domain"
)

// timeLayouts are tried in order when parsing the time column.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// LoadBarCSV reads daily or intraday OHLC bars for one asset from a CSV
// file with columns time,open,high,low,close. A header row is skipped
// automatically.
func LoadBarCSV(path string, asset domain.Asset) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ticks, err := ReadBars(f, asset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

// ReadBars parses time,open,high,low,close rows from r.
func ReadBars(r io.Reader, asset domain.Asset) ([]domain.Tick, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	var ticks []domain.Tick
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: want 5 columns time,open,high,low,close, got %d", line, len(rec))
		}

		ts, err := parseTime(rec[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var ohlc [4]float64
		for i := range ohlc {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			ohlc[i] = v
		}
		ticks = append(ticks, domain.NewBarTick(asset, ts, ohlc[0], ohlc[1], ohlc[2], ohlc[3]))
	}
	return ticks, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
