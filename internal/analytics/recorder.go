// Package analytics records fills and equity snapshots to CSV for
// offline analysis, the way a live run would persist its own trade tape.
package analytics

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"backtestengine/internal/core"
	"backtestengine/internal/logger"
)

// FillRecorder appends every fill it observes to a CSV file through an
// unbuffered-to-caller, buffered-to-disk async writer, so recording never
// blocks the engine loop on file I/O.
type FillRecorder struct {
	file   *os.File
	writer *csv.Writer
	log    *logger.Logger

	writeChan chan []string
	done      chan struct{}
}

// NewFillRecorder opens (or appends to) filename, writing a header row
// only if the file is new or empty.
func NewFillRecorder(filename string, log *logger.Logger) (*FillRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	info, statErr := os.Stat(filename)
	needHeader := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write([]string{"event_time_ms", "order_id", "symbol", "side", "price", "quantity", "fee", "liquidity"}); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
	}

	r := &FillRecorder{
		file:      f,
		writer:    w,
		log:       log,
		writeChan: make(chan []string, 50_000),
		done:      make(chan struct{}),
	}
	go r.backgroundWriter()
	return r, nil
}

// Record enqueues one fill for writing; it drops the row rather than
// blocking the caller if the write buffer is saturated.
func (r *FillRecorder) Record(f core.Fill) {
	row := []string{
		fmt.Sprintf("%d", f.EventTimeMs),
		f.OrderID,
		f.Symbol,
		f.Side.String(),
		fmt.Sprintf("%.8f", f.Price),
		fmt.Sprintf("%.8f", f.Quantity),
		fmt.Sprintf("%.8f", f.Fee),
		string(f.Liquidity),
	}
	select {
	case r.writeChan <- row:
	default:
		r.log.Warn("fill recorder write buffer full, dropping row", logger.F("order_id", f.OrderID))
	}
}

func (r *FillRecorder) backgroundWriter() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case row := <-r.writeChan:
			if err := r.writer.Write(row); err != nil {
				r.log.Warn("fill recorder write error", logger.F("error", err))
			}
		case <-ticker.C:
			r.writer.Flush()
		case <-r.done:
			return
		}
	}
}

// Close flushes and closes the underlying file.
func (r *FillRecorder) Close() error {
	// Stop the background writer, then write out any rows still queued.
	r.done <- struct{}{}
	for {
		select {
		case row := <-r.writeChan:
			if err := r.writer.Write(row); err != nil {
				r.log.Warn("fill recorder write error", logger.F("error", err))
			}
		default:
			r.writer.Flush()
			return r.file.Close()
		}
	}
}

// EquityPoint is one (time, equity) sample, matching any strategy's own
// equity-curve element shape.
type EquityPoint struct {
	TimeMs int64
	Equity float64
}

// EquityRecorder writes (time, equity) samples to CSV, e.g. from a
// strategy's own equity curve at end of run.
type EquityRecorder struct {
	file   *os.File
	writer *csv.Writer
}

// NewEquityRecorder opens filename and writes its header.
func NewEquityRecorder(filename string) (*EquityRecorder, error) {
	f, err := os.OpenFile(filename, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"time_ms", "equity"}); err != nil {
		f.Close()
		return nil, err
	}
	return &EquityRecorder{file: f, writer: w}, nil
}

// WriteAll writes every (time_ms, equity) pair and flushes.
func (r *EquityRecorder) WriteAll(points []EquityPoint) error {
	for _, p := range points {
		if err := r.writer.Write([]string{fmt.Sprintf("%d", p.TimeMs), fmt.Sprintf("%.8f", p.Equity)}); err != nil {
			return err
		}
	}
	r.writer.Flush()
	return r.writer.Error()
}

// Close closes the underlying file.
func (r *EquityRecorder) Close() error {
	return r.file.Close()
}
