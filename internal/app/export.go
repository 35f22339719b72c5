package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"momentum-alerts/internal/storage"
)

// Export renders signal history as CSV and/or a PNG of daily signal counts.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, -3, 0)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListSignalsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no signals found for export window")
		return nil
	}
	if len(records) > opts.MaxRows {
		records = records[len(records)-opts.MaxRows:]
	}

	a.Logger.Info().Int("exported", len(records)).Msg("exporting signal history")

	if opts.CSVPath != "" {
		if err := writeSignalsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSignalCountsPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}

	return nil
}

func writeSignalsCSV(path string, records []storage.SignalRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "ticker", "price", "recorded_at"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Date.UTC().Format("2006-01-02"),
			rec.Ticker,
			rec.Price.String(),
			rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSignalCountsPNG(path string, records []storage.SignalRecord) error {
	counts := make(map[time.Time]int)
	for _, rec := range records {
		day := rec.Date.UTC().Truncate(24 * time.Hour)
		counts[day]++
	}

	days := make([]time.Time, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	xs := make([]time.Time, 0, len(days))
	ys := make([]float64, 0, len(days))
	for _, day := range days {
		xs = append(xs, day)
		ys = append(ys, float64(counts[day]))
	}

	graph := chart.Chart{
		Title:  "Signals per day",
		Width:  1280,
		Height: 480,
		XAxis:  chart.XAxis{Name: "Date"},
		YAxis:  chart.YAxis{Name: "Signals"},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "signals",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
