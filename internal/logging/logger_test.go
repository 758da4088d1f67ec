package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	opts = Options{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	err := Initialize(tempDir, Options{
		DebugMode: true,
		Level:     "debug",
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryTransport, CategoryCache, CategoryStore,
		CategoryOffline, CategoryNetmon, CategoryData, CategoryConfig,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		logPath := filepath.Join(tempDir, "logs", date+"_"+string(cat)+".log")
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Errorf("Expected log file for category %s: %v", cat, err)
			continue
		}
		if !strings.Contains(string(data), "test message") {
			t.Errorf("Log file for %s missing message", cat)
		}
	}
}

func TestProductionModeIsNoOp(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	if err := Initialize(tempDir, Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	Get(CategoryTransport).Info("should not be written")
	Transport("convenience should not be written either")

	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Error("Expected no logs directory in production mode")
	}
}

func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	err := Initialize(tempDir, Options{
		DebugMode: true,
		Level:     "debug",
		Categories: map[string]bool{
			"transport": true,
			"cache":     false,
		},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	if !IsCategoryEnabled(CategoryTransport) {
		t.Error("transport should be enabled")
	}
	if IsCategoryEnabled(CategoryCache) {
		t.Error("cache should be disabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryOffline) {
		t.Error("unlisted category should default to enabled")
	}
}

func TestReconfigureSwapsLevel(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	if err := Initialize(tempDir, Options{DebugMode: true, Level: "error"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	if logLevel != LevelError {
		t.Fatalf("expected error level, got %d", logLevel)
	}

	Reconfigure(Options{DebugMode: true, Level: "debug"})
	if logLevel != LevelDebug {
		t.Fatalf("expected debug level after reconfigure, got %d", logLevel)
	}
}

func TestStructuredJSONEntry(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	err := Initialize(tempDir, Options{DebugMode: true, Level: "debug", JSONFormat: true})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	rl := WithRequestID(CategoryTransport, "req-123").WithField("method", "GET")
	rl.Structured("info", "request sent", map[string]any{"url": "/documents"})
	CloseAll()

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(tempDir, "logs", date+"_transport.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"req":"req-123"`, `"method":"GET"`, `"url":"/documents"`, `"cat":"transport"`} {
		if !strings.Contains(out, want) {
			t.Errorf("structured entry missing %s in %s", want, out)
		}
	}
}

func TestConcurrentGet(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	if err := Initialize(tempDir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Get(CategoryCache).Debug("concurrent write")
		}()
	}
	wg.Wait()
}
