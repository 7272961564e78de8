package events

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEventLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLoggerWithWriter("test-123", &buf)

	el.LogAlert("memory", 0.92, 0.9, "abort")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "alert" {
		t.Errorf("msg = %v, want alert", rec["msg"])
	}
	if rec["test_id"] != "test-123" {
		t.Errorf("test_id = %v", rec["test_id"])
	}
	if rec["metric"] != "memory" {
		t.Errorf("metric = %v", rec["metric"])
	}
}

func TestGetGlobalEventLoggerNeverNil(t *testing.T) {
	SetGlobalEventLogger(nil)
	if GetGlobalEventLogger() == nil {
		t.Fatal("expected non-nil noop logger")
	}
}
