package worker

import (
	"encoding/json"
	"testing"

	"github.com/payhub-next/internal/queue"
)

func TestScanLimit(t *testing.T) {
	if got := scanLimit(0); got != defaultScanLimit {
		t.Fatalf("zero limit should fall back to default, got %d", got)
	}
	if got := scanLimit(-5); got != defaultScanLimit {
		t.Fatalf("negative limit should fall back to default, got %d", got)
	}
	if got := scanLimit(50); got != 50 {
		t.Fatalf("positive limit should pass through, got %d", got)
	}
}

func TestPayoutSettlePayloadRoundTrip(t *testing.T) {
	task, err := queue.NewPayoutSettleTask(queue.PayoutSettlePayload{BatchID: 42, Limit: 10})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if task.Type() != queue.TaskPayoutSettle {
		t.Fatalf("task type want %s got %s", queue.TaskPayoutSettle, task.Type())
	}

	var payload queue.PayoutSettlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if payload.BatchID != 42 {
		t.Fatalf("batch id want 42 got %d", payload.BatchID)
	}
	if payload.Limit != 10 {
		t.Fatalf("limit want 10 got %d", payload.Limit)
	}
}
