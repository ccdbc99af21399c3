package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "expenses", queueName: "expense_events"}

	if client.isCircuitOpen() {
		t.Fatal("new client should have a closed circuit")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatalf("expected open state after %d failures", maxFailures)
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit should be open")
	}

	// Simulate the open timeout elapsing
	client.mu.Lock()
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	client.mu.Unlock()
	if client.isCircuitOpen() {
		t.Fatal("circuit should allow a trial request after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("expected half-open state")
	}

	// A failure in half-open reopens immediately
	client.recordFailure()
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatal("half-open failure should reopen the circuit")
	}

	client.recordSuccess()
	if atomic.LoadInt32(&client.state) != StateClosed || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}
}

func TestClient_PublishExpenseEvent_CircuitOpen(t *testing.T) {
	client := &Client{exchangeName: "expenses", queueName: "expense_events"}
	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()

	err := client.PublishExpenseEvent(context.Background(), NewExpenseEvent(EventCreated, "u1", []string{"e1"}, 1))
	if err == nil {
		t.Fatal("expected error while circuit is open")
	}
	if !errors.Is(err, errCircuitOpen) {
		t.Errorf("expected circuit breaker error, got %v", err)
	}
}

func TestNewExpenseEvent(t *testing.T) {
	before := time.Now().UTC()
	ev := NewExpenseEvent(EventDeleted, "user-1", []string{"a", "b"}, 2)

	if ev.Type != EventDeleted || ev.UserID != "user-1" || ev.Count != 2 {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(ev.IDs) != 2 {
		t.Errorf("expected 2 ids, got %d", len(ev.IDs))
	}
	if ev.Timestamp.Before(before) {
		t.Errorf("timestamp %v before %v", ev.Timestamp, before)
	}
}

func TestExpenseEvent_JSON(t *testing.T) {
	ev := NewExpenseEvent(EventImported, "user-1", nil, 42)

	data, err := ev.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if strings.Contains(string(data), `"ids"`) {
		t.Errorf("empty ids should be omitted: %s", data)
	}

	var decoded ExpenseEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != EventImported || decoded.Count != 42 || decoded.UserID != "user-1" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
