package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/manningwu07/seq2seq/seq2seq"
	"github.com/manningwu07/seq2seq/store"
)

// asciiPlot draws a crude vertical bar chart of values (0..1).
func asciiPlot(w io.Writer, values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, v := range values {
			if v >= threshold {
				fmt.Fprint(w, "█")
			} else {
				fmt.Fprint(w, " ")
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, strings.Repeat("─", n))
	// epoch index every 5 columns
	for i := range values {
		if i%5 == 0 {
			fmt.Fprint(w, strconv.Itoa(i%10))
		} else {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprintln(w)
}

// lossCurve scales epoch losses into (0..1] by the largest one.
func lossCurve(hist []seq2seq.EpochStats) []float64 {
	mx := 0.0
	for _, s := range hist {
		mx = max(mx, s.Loss)
	}
	out := make([]float64, len(hist))
	if mx == 0 {
		return out
	}
	for i, s := range hist {
		out[i] = s.Loss / mx
	}
	return out
}

// epochLog writes one CSV row per epoch.
type epochLog struct {
	f *os.File
	w *csv.Writer
}

func newEpochLog(path string) (*epochLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating log file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "loss", "accuracy", "val_loss", "val_accuracy", "skipped", "dropped"}); err != nil {
		f.Close()
		return nil, err
	}
	return &epochLog{f: f, w: w}, nil
}

func (l *epochLog) write(s seq2seq.EpochStats) error {
	return l.w.Write([]string{
		strconv.Itoa(s.Epoch),
		strconv.FormatFloat(s.Loss, 'f', 4, 64),
		strconv.FormatFloat(s.Accuracy, 'f', 4, 64),
		strconv.FormatFloat(s.ValLoss, 'f', 4, 64),
		strconv.FormatFloat(s.ValAccuracy, 'f', 4, 64),
		strconv.Itoa(s.Skipped),
		strconv.Itoa(s.Dropped),
	})
}

func (l *epochLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// printHistory prints the config and epochs of the latest run, then the
// last n chat messages.
func printHistory(ctx context.Context, w io.Writer, h *store.History, n int) error {
	run, err := h.LatestRun(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		fmt.Fprintln(w, "no training runs recorded")
	case err != nil:
		return err
	default:
		cfg, err := h.RunConfig(ctx, run)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Run %d: D=%d H=%d attention=%s optimizer=%s lr=%g\n",
			run, cfg.EmbedDim, cfg.HiddenSize, cfg.Attention, cfg.Optimizer, cfg.LearningRate)
		epochs, err := h.Epochs(ctx, run)
		if err != nil {
			return err
		}
		for _, s := range epochs {
			fmt.Fprintf(w, "Epoch %d - Loss: %.4f, Acc: %.4f, ValLoss: %.4f, Skipped: %d\n",
				s.Epoch, s.Loss, s.Accuracy, s.ValLoss, s.Skipped)
		}
		asciiPlot(w, lossCurve(epochs))
	}

	msgs, err := h.RecentMessages(ctx, n)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s: %s\n", m.Role, m.Text)
	}
	return nil
}
