package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	historyLockTimeout    = 30 * time.Second
	historyLockRetry      = 10 * time.Millisecond
	historyLockStaleAfter = 2 * time.Minute
)

// AppendRecord appends one newline-terminated record to a history file under
// a cross-process lock file. Several decks written into a shared workspace
// append to the same solver history, so appends must not interleave.
func AppendRecord(path string, record []byte, mode os.FileMode) error {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	payload := make([]byte, 0, len(record)+1)
	payload = append(payload, record...)
	payload = append(payload, '\n')

	return withLockFile(cleanPath+".lock", func() error {
		// #nosec G304 -- history path is chosen by the caller.
		file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("open history file: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, err := file.Write(payload); err != nil {
			return fmt.Errorf("append history record: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync history file: %w", err)
		}
		return nil
	})
}

func withLockFile(lockPath string, fn func() error) error {
	start := time.Now()
	for {
		// #nosec G304 -- lock path is derived from the history path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire history lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > historyLockStaleAfter {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= historyLockTimeout {
			return fmt.Errorf("history lock timeout")
		}
		time.Sleep(historyLockRetry)
	}
}

// ReadLines returns the lines of a history file. A missing file has no lines.
func ReadLines(path string) ([]string, error) {
	// #nosec G304 -- history path is chosen by the caller.
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n"), nil
}
