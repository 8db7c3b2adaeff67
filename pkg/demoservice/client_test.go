package demoservice

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/logx"
)

func TestClient_CallFailsFastAgainstUnreachableTarget(t *testing.T) {
	logger := logx.New(logx.Options{Level: "error", Output: os.Stderr})
	c := New("127.0.0.1:1", "grpc.health.v1.Health/Check", 200*time.Millisecond, logger)

	_, err := c.Call(context.Background())
	if err == nil {
		t.Fatal("expected an error dialing an unreachable target")
	}
}

func TestNew_DefaultsNonPositiveTimeout(t *testing.T) {
	logger := logx.New(logx.Options{Level: "error", Output: os.Stderr})
	c := New("127.0.0.1:1", "grpc.health.v1.Health/Check", 0, logger)
	if c.timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want the 5s default for a non-positive input", c.timeout)
	}
}
