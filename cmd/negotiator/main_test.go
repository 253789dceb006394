package main

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/KaioH3/negotiation-agent/internal/logging"
)

func TestRuntimeDieClosesLog(t *testing.T) {
	logger, err := logging.New(t.TempDir())
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	rt := &runtime{logger: logger}
	rt.die("negotiation failed: %v", errors.New("supplier timeout"))
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if err := logger.Close(); err == nil {
		t.Fatalf("expected log file to be closed before exit")
	}
	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "negotiation failed: supplier timeout") {
		t.Fatalf("expected failure in log, got %q", data)
	}
}
