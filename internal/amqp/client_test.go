package amqp

import (
	"errors"
	"fmt"
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
		{64, 30 * time.Second}, // shift overflow still capped
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
		{"channel closed", errors.New("message channel closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"handler error", errors.New("append to sheet: quota exceeded"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestNewLedgerEvent(t *testing.T) {
	event := NewLedgerEvent(ActionCreated, "tx-1", "account:u1")

	if event.Action != ActionCreated {
		t.Errorf("Action = %q, want %q", event.Action, ActionCreated)
	}
	if event.TxID != "tx-1" {
		t.Errorf("TxID = %q, want tx-1", event.TxID)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestLedgerEventJSON(t *testing.T) {
	timestamp := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	event := &LedgerEvent{
		Action:    ActionMigrated,
		Owner:     "account:u1",
		Timestamp: timestamp,
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := LedgerEventFromJSON(data)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON() error = %v", err)
	}

	if parsed.Action != event.Action {
		t.Errorf("Parsed Action = %q, want %q", parsed.Action, event.Action)
	}
	if parsed.Owner != event.Owner {
		t.Errorf("Parsed Owner = %q, want %q", parsed.Owner, event.Owner)
	}
	if !parsed.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, event.Timestamp)
	}
}

func TestLedgerEventInvalidJSON(t *testing.T) {
	if _, err := LedgerEventFromJSON([]byte(`{"action": 3}`)); err == nil {
		t.Error("LedgerEventFromJSON() should fail with invalid JSON")
	}
}
