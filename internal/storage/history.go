package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/suite"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("history writer is closed")
	ErrBufferFull = errors.New("history buffer full")
)

// HistoryEntry is one line of runs.jsonl.
type HistoryEntry struct {
	RunID      string      `json:"run_id"`
	State      suite.State `json:"state"`
	Passed     bool        `json:"passed"`
	Passing    int         `json:"passing"`
	Failing    int         `json:"failing"`
	TargetURL  string      `json:"target_url"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	SetupError string      `json:"setup_error,omitempty"`
}

// EntryFromReport condenses a report into a history line.
func EntryFromReport(rep *suite.Report) HistoryEntry {
	passing, failing := rep.Counts()
	return HistoryEntry{
		RunID:      rep.ID,
		State:      rep.State,
		Passed:     rep.Passed,
		Passing:    passing,
		Failing:    failing,
		TargetURL:  rep.TargetURL,
		StartedAt:  rep.StartedAt,
		DurationMS: rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
		SetupError: rep.SetupError,
	}
}

// HistoryWriter appends run summaries to <baseDir>/<date>/history/runs.jsonl
// from a background goroutine.
type HistoryWriter struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan HistoryEntry
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewHistoryWriter starts the writer loop.
func NewHistoryWriter(baseDir string, bufferSize, maxSizeMB int) *HistoryWriter {
	if bufferSize < 1 {
		bufferSize = 1
	}
	w := &HistoryWriter{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan HistoryEntry, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues an entry without blocking.
func (w *HistoryWriter) Write(entry HistoryEntry) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- entry:
		return nil
	default:
		slog.Warn("history buffer full, dropping entry", "run_id", entry.RunID)
		return ErrBufferFull
	}
}

// Close stops the loop and flushes queued entries.
func (w *HistoryWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		for {
			select {
			case entry := <-w.writeCh:
				w.writeEntry(entry)
				continue
			default:
			}
			break
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.logger != nil {
			err = w.logger.Close()
		}
	})
	return err
}

func (w *HistoryWriter) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case entry := <-w.writeCh:
			w.writeEntry(entry)
		case <-w.done:
			return
		}
	}
}

func (w *HistoryWriter) writeEntry(entry HistoryEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Error("failed to marshal history entry", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("failed to open history file", "error", err)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write history entry", "error", err, "run_id", entry.RunID)
	}
}

func (w *HistoryWriter) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, "history")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	filename := filepath.Join(dir, "runs.jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
	}
	w.currentDate = date
	slog.Debug("opened history file", "file", filename)
	return nil
}
