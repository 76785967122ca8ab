package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"royalties/internal/logging"
)

const maxLineBytes = 1024 * 1024

// Filter selects log lines by correlation field. Empty fields match anything.
type Filter struct {
	StatementID string
	JobID       string
	TenantID    string
	Level       string
}

func (f Filter) empty() bool {
	return f.StatementID == "" && f.JobID == "" && f.TenantID == "" && f.Level == ""
}

// Match reports whether a JSON or console log line satisfies the filter.
func (f Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	want := map[string]string{
		logging.FieldStatementID: f.StatementID,
		logging.FieldJobID:       f.JobID,
		logging.FieldTenantID:    f.TenantID,
	}
	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return false
		}
		for key, value := range want {
			if value != "" && fmt.Sprint(record[key]) != value {
				return false
			}
		}
		if f.Level != "" && !strings.EqualFold(fmt.Sprint(record["level"]), f.Level) {
			return false
		}
		return true
	}
	for key, value := range want {
		if value != "" && !strings.Contains(line, " "+key+"="+value) {
			return false
		}
	}
	if f.Level != "" {
		parts := strings.Fields(line)
		if len(parts) < 2 || !strings.EqualFold(parts[1], f.Level) {
			return false
		}
	}
	return true
}

// Tail returns up to limit matching lines from the end of path and the file
// size at the time of reading. A missing file yields no lines.
func Tail(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	next := 0
	offset, err := scan(file, func(line string) {
		if !filter.Match(line) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := append(ring[next:len(ring):len(ring)], ring[:next]...)
	return lines, offset, nil
}

// Follow polls path from offset and calls emit for every new matching line
// until ctx ends. A truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, func(line string) {
		if filter.Match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return read, nil
}

// scan feeds complete lines to fn and returns the offset after the last
// newline, so a partially written line is picked up on the next read.
func scan(file *os.File, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	consumed := start
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
