package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ridgelink/sensormesh/internal/config"
)

// File appends reports to a log file, one JSON object or text line per
// report, with optional size-based rotation.
type File struct {
	path      string
	format    string
	rotate    bool
	maxSizeMB int

	mu   sync.Mutex
	file *os.File
}

// NewFile creates a file output.
func NewFile(cfg config.SinkConfig) (*File, error) {
	path := "reports.log"
	if p, ok := cfg.Options["path"].(string); ok {
		path = p
	}

	format := "json"
	if f, ok := cfg.Options["format"].(string); ok {
		format = f
	}

	rotate := true
	if r, ok := cfg.Options["rotate"].(bool); ok {
		rotate = r
	}

	maxSizeMB := 100
	switch m := cfg.Options["max_size_mb"].(type) {
	case int:
		maxSizeMB = m
	case float64:
		maxSizeMB = int(m)
	}

	f := &File{
		path:      path,
		format:    format,
		rotate:    rotate,
		maxSizeMB: maxSizeMB,
	}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) open() error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	f.file = file
	return nil
}

// Send appends one record.
func (f *File) Send(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("file output is closed")
	}
	if err := f.maybeRotate(); err != nil {
		return err
	}

	var line string
	if f.format == "json" {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		line = string(data)
	} else {
		line = fmt.Sprintf("%s node=%d temp=%.1f hum=%.1f pres=%d rssi=%.0f src=%s",
			rec.ReceivedAt.Format("2006-01-02T15:04:05Z07:00"), rec.SourceID,
			rec.TempF, rec.Humidity, rec.PressureHPa, rec.RSSI, rec.TimeSource)
	}

	_, err := fmt.Fprintln(f.file, line)
	return err
}

func (f *File) maybeRotate() error {
	if !f.rotate {
		return nil
	}
	info, err := f.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() < int64(f.maxSizeMB)*1024*1024 {
		return nil
	}

	_ = f.file.Close()
	rotated := f.path + ".1"
	_ = os.Remove(rotated)
	if err := os.Rename(f.path, rotated); err != nil {
		return fmt.Errorf("failed to rotate %s: %w", f.path, err)
	}
	return f.open()
}

// Close flushes and closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Name returns the output identifier.
func (f *File) Name() string { return fmt.Sprintf("file:%s", f.path) }
