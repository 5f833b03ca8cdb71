package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppendRecordConcurrent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "history", "runs.jsonl")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := AppendRecord(target, []byte(`{"exit_code":0}`), 0o600); err != nil {
				t.Errorf("append record: %v", err)
			}
		}()
	}
	wg.Wait()

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 records, got %d", len(lines))
	}
	for _, line := range lines {
		if line != `{"exit_code":0}` {
			t.Fatalf("interleaved record: %q", line)
		}
	}
	if _, err := os.Stat(target + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("expected lock file to be removed, stat err=%v", err)
	}
}

func TestAppendRecordRecoversStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "runs.jsonl")
	lockPath := target + ".lock"
	if err := os.WriteFile(lockPath, nil, 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	stale := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(lockPath, stale, stale); err != nil {
		t.Fatalf("age lock: %v", err)
	}
	if err := AppendRecord(target, []byte("x"), 0o600); err != nil {
		t.Fatalf("append with stale lock: %v", err)
	}
}

func TestReadLines(t *testing.T) {
	target := filepath.Join(t.TempDir(), "runs.jsonl")
	lines, err := ReadLines(target)
	if err != nil || lines != nil {
		t.Fatalf("missing history: lines=%v err=%v", lines, err)
	}
	for _, record := range []string{"a", "b"} {
		if err := AppendRecord(target, []byte(record), 0o600); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	lines, err = ReadLines(target)
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	if strings.Join(lines, ",") != "a,b" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}
