package main

import (
	"context"
	"strings"
	"testing"
)

func TestRun_RequiresHost(t *testing.T) {
	err := run(context.Background(), options{})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("run() error = %v, want missing host", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), options{configPath: "/nonexistent/config.yaml"})
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config error", err)
	}
}
