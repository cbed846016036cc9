package models

import (
	"errors"
	"testing"
	"time"

	"github.com/payhub-next/internal/constants"
)

func newCapturedIntent(amount int64) *PaymentIntent {
	now := time.Now()
	return &PaymentIntent{
		IntentNo:       "pi_test",
		StoreID:        1,
		Amount:         amount,
		Currency:       "EUR",
		PSPName:        constants.PSPCardnet,
		Status:         constants.IntentStatusCaptured,
		CapturedAmount: amount,
		CapturedAt:     &now,
	}
}

func TestPaymentIntentLifecycle(t *testing.T) {
	intent := &PaymentIntent{
		Amount:   10000,
		Currency: "EUR",
		Status:   constants.IntentStatusCreated,
	}

	now := time.Now()
	if err := intent.MarkAuthorized("psp_ref_1", now, nil); err != nil {
		t.Fatalf("MarkAuthorized() error = %v", err)
	}
	if intent.Status != constants.IntentStatusAuthorized {
		t.Fatalf("Status = %s, want AUTHORIZED", intent.Status)
	}
	if err := intent.MarkCaptured(10000, now); err != nil {
		t.Fatalf("MarkCaptured() error = %v", err)
	}
	if intent.Status != constants.IntentStatusCaptured {
		t.Fatalf("Status = %s, want CAPTURED", intent.Status)
	}
	if intent.RemainingRefundable() != 10000 {
		t.Fatalf("RemainingRefundable() = %d, want 10000", intent.RemainingRefundable())
	}
}

func TestPaymentIntentInvalidTransitions(t *testing.T) {
	now := time.Now()

	created := &PaymentIntent{Status: constants.IntentStatusCreated, Amount: 100}
	if err := created.MarkCaptured(100, now); !errors.Is(err, ErrIntentInvalidTransition) {
		t.Fatalf("capture from CREATED: error = %v, want ErrIntentInvalidTransition", err)
	}

	captured := newCapturedIntent(100)
	if err := captured.MarkFailed(); !errors.Is(err, ErrIntentInvalidTransition) {
		t.Fatalf("fail from CAPTURED: error = %v, want ErrIntentInvalidTransition", err)
	}

	refunded := newCapturedIntent(100)
	if err := refunded.ApplyRefund(100); err != nil {
		t.Fatalf("ApplyRefund() error = %v", err)
	}
	if err := refunded.ApplyRefund(1); !errors.Is(err, ErrIntentAmountInvariant) {
		t.Fatalf("refund past full: error = %v, want ErrIntentAmountInvariant", err)
	}
}

func TestPaymentIntentPartialRefunds(t *testing.T) {
	intent := newCapturedIntent(10000)

	if err := intent.ApplyRefund(3000); err != nil {
		t.Fatalf("first ApplyRefund() error = %v", err)
	}
	if intent.Status != constants.IntentStatusPartiallyRefunded {
		t.Fatalf("Status = %s, want PARTIALLY_REFUNDED", intent.Status)
	}
	if intent.RemainingRefundable() != 7000 {
		t.Fatalf("RemainingRefundable() = %d, want 7000", intent.RemainingRefundable())
	}

	if err := intent.ApplyRefund(7001); !errors.Is(err, ErrIntentAmountInvariant) {
		t.Fatalf("over-refund: error = %v, want ErrIntentAmountInvariant", err)
	}

	if err := intent.ApplyRefund(7000); err != nil {
		t.Fatalf("final ApplyRefund() error = %v", err)
	}
	if intent.Status != constants.IntentStatusRefunded {
		t.Fatalf("Status = %s, want REFUNDED", intent.Status)
	}
	if intent.RemainingRefundable() != 0 {
		t.Fatalf("RemainingRefundable() = %d, want 0", intent.RemainingRefundable())
	}
}

func TestRateApplyTo(t *testing.T) {
	rate := MustRate("2.9")
	if got := rate.ApplyTo(10000); got != 290 {
		t.Fatalf("ApplyTo(10000) = %d, want 290", got)
	}
	// 向下取整，平台少收不多收
	if got := rate.ApplyTo(999); got != 28 {
		t.Fatalf("ApplyTo(999) = %d, want 28", got)
	}
	if got := MustRate("0").ApplyTo(10000); got != 0 {
		t.Fatalf("zero rate ApplyTo(10000) = %d, want 0", got)
	}
}
