package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback defines the interface for progress reporting during batch processing.
type ProgressCallback interface {
	// OnStart is called when processing begins with the total number of items.
	OnStart(total int)

	// OnProgress is called periodically with current progress.
	OnProgress(current, total int)

	// OnComplete is called when processing is finished.
	OnComplete()

	// OnError is called when an item fails.
	OnError(index int, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgressCallback displays a progress bar on the console.
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	lastUpdate     time.Time
	updateInterval time.Duration
	mutex          sync.Mutex
	startTime      time.Time
}

// NewConsoleProgressCallback creates a new console progress reporter.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithWidth sets the progress bar width.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	if total == 0 {
		return
	}

	percent := float64(current) / float64(total) * 100.0
	filled := c.width * current / total
	bar := strings.Repeat("#", filled) + strings.Repeat(".", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total, percent)
	if elapsed := now.Sub(c.startTime); elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.writer, status)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(index int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sError at item %d: %v\n", c.prefix, index, err)
}

// LogProgressCallback logs progress updates using slog.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	interval  int // Log every N items
	mutex     sync.Mutex
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval sets how frequently to log progress (every N items).
func (l *LogProgressCallback) WithInterval(interval int) *LogProgressCallback {
	if interval > 0 {
		l.interval = interval
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, "Starting processing", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	elapsed := time.Since(l.startTime)
	l.logger.Log(context.Background(), l.level, "Progress update",
		"current", current,
		"total", total,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Processing completed",
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(index int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Processing error", "index", index, "error", err)
}
