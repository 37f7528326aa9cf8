// Package logs reads the hunt log back for the CLI.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileName is the log file the engine writes under the configured log
// directory.
const FileName = "falsniper.log"

// Path returns the hunt log location for a log directory.
func Path(logDir string) string {
	return filepath.Join(logDir, FileName)
}

const pollInterval = 250 * time.Millisecond

// ReadLast returns up to limit trailing lines and the offset where the
// file currently ends, the resume point for ReadFrom. A limit of zero or
// less returns every line. A missing file yields no lines and offset zero.
func ReadLast(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open hunt log: %w", err)
	}
	defer file.Close()

	scanner := newLineScanner(file)
	var lines []string
	if limit > 0 {
		ring := make([]string, limit)
		count, next := 0, 0
		for scanner.Scan() {
			ring[next] = scanner.Text()
			next = (next + 1) % limit
			if count < limit {
				count++
			}
		}
		lines = make([]string, 0, count)
		if count == limit {
			for i := 0; i < count; i++ {
				lines = append(lines, ring[(next+i)%limit])
			}
		} else {
			lines = append(lines, ring[:count]...)
		}
	} else {
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read hunt log: %w", err)
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("locate log end: %w", err)
	}
	return lines, offset, nil
}

// ReadFrom returns the lines appended since offset and the new resume
// offset. When nothing new is there and wait is positive, it polls until
// lines land, the wait elapses, or ctx is done. A file shorter than offset
// is treated as replaced and read from the start.
func ReadFrom(ctx context.Context, path string, offset int64, wait time.Duration) ([]string, int64, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		lines, next, err := readForward(path, offset)
		if err != nil {
			return nil, offset, err
		}
		if len(lines) > 0 || wait <= 0 || time.Now().After(deadline) {
			return lines, next, nil
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil, offset, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open hunt log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat hunt log: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek hunt log: %w", err)
	}

	scanner := newLineScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, offset, fmt.Errorf("read hunt log: %w", err)
	}

	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, offset, fmt.Errorf("locate log position: %w", err)
	}
	return lines, next, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
