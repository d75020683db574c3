// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels are not ordered Debug < Info < Warn < Error")
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("New() returned logger with nil slog")
	}
	if logger.file != nil {
		t.Error("New() with no LogDir should not open a file")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "modeldoc-test",
		Quiet:   true,
	})

	logger.Info("snapshot parsed", "entities", 7)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	wantName := "modeldoc-test_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "snapshot parsed") {
		t.Errorf("log file missing message, got: %s", content)
	}
	if !strings.Contains(content, `"service":"modeldoc-test"`) {
		t.Errorf("log file missing service attribute, got: %s", content)
	}
	if !strings.Contains(content, `"entities":7`) {
		t.Errorf("log file missing attribute, got: %s", content)
	}
}

func TestNew_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger := New(Config{LogDir: dir, Quiet: true})
	defer logger.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log directory was not created: %v", err)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter-test",
		Quiet:   true,
	})

	logger.Debug("dropped debug")
	logger.Info("dropped info")
	logger.Warn("kept warn")
	logger.Error("kept error")
	logger.Close()

	wantName := "filter-test_" + time.Now().Format("2006-01-02") + ".log"
	data, _ := os.ReadFile(filepath.Join(dir, wantName))
	content := string(data)

	if strings.Contains(content, "dropped") {
		t.Errorf("messages below level leaked through: %s", content)
	}
	if !strings.Contains(content, "kept warn") || !strings.Contains(content, "kept error") {
		t.Errorf("messages at or above level missing: %s", content)
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter, Service: "with-test"})
	defer logger.Close()

	child := logger.With("snapshot_id", "abc123")
	if child == logger {
		t.Fatal("With() returned the same logger")
	}
	child.Info("graph built")

	waitForEntries(t, exporter, 1)
	entries := exporter.Entries()
	if entries[0].Message != "graph built" {
		t.Errorf("entry message = %q, want %q", entries[0].Message, "graph built")
	}
}

func TestLogger_ExporterReceivesEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter, Service: "export-test"})
	defer logger.Close()

	logger.Info("annotation run complete", "annotated", 3)

	waitForEntries(t, exporter, 1)
	entries := exporter.Entries()
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Errorf("entry level = %v, want %v", entry.Level, LevelInfo)
	}
	if entry.Service != "export-test" {
		t.Errorf("entry service = %q, want %q", entry.Service, "export-test")
	}
	if entry.Attrs["annotated"] != 3 {
		t.Errorf("entry attrs = %v, want annotated=3", entry.Attrs)
	}
}

func TestLogger_ExporterRespectsLevel(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelError, Quiet: true, Exporter: exporter})
	defer logger.Close()

	logger.Info("not exported")
	logger.Error("exported")

	waitForEntries(t, exporter, 1)
	entries := exporter.Entries()
	if len(entries) != 1 || entries[0].Message != "exported" {
		t.Errorf("exporter entries = %v, want only the error entry", entries)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)

	err := exporter.Export(context.Background(), LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "cycle detected",
		Attrs:     map[string]any{"entity": "T[A]"},
	})
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.Contains(buf.String(), "WARN: cycle detected") {
		t.Errorf("writer output = %q", buf.String())
	}
	if err := exporter.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export() error: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := expandPath("~/logs")
	want := filepath.Join(home, "logs")
	if got != want {
		t.Errorf("expandPath(~/logs) = %q, want %q", got, want)
	}
	if expandPath("/var/log") != "/var/log" {
		t.Error("absolute paths should pass through unchanged")
	}
}

func TestArgsToMap(t *testing.T) {
	m := argsToMap([]any{"key1", "value1", "key2", 123, "dangling"})
	if m["key1"] != "value1" || m["key2"] != 123 {
		t.Errorf("argsToMap() = %v", m)
	}
	if _, ok := m["dangling"]; ok {
		t.Error("dangling key without value should be dropped")
	}
}

// waitForEntries polls the buffered exporter until n entries arrived or the
// deadline passes. Export runs on a goroutine per entry.
func waitForEntries(t *testing.T, e *BufferedExporter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Entries()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("exporter never received %d entries, got %d", n, len(e.Entries()))
}
