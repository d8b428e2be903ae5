package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"smcbot/internal/domain"
)

// WriteResultsToCSV exports realized trade results to a CSV file, one row per
// closed round trip.
func WriteResultsToCSV(results []*domain.TradeResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"id", "symbol", "side", "quantity", "entry_price", "exit_price", "pnl", "commission", "entry_time", "exit_time"})

	for _, r := range results {
		writer.Write([]string{
			r.ID,
			r.Symbol,
			string(r.Side),
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			strconv.FormatFloat(r.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(r.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(r.PNL, 'f', -1, 64),
			strconv.FormatFloat(r.Commission, 'f', -1, 64),
			r.EntryTime.Format(time.RFC3339),
			r.ExitTime.Format(time.RFC3339),
		})
	}
	return writer.Error()
}

// WriteCandlesToCSV exports a candle series to a CSV file.
func WriteCandlesToCSV(candles []*domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"timestamp", "symbol", "interval", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		writer.Write([]string{
			c.Timestamp.Format(time.RFC3339),
			c.Symbol,
			c.Interval,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
