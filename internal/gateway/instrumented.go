package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mycarconcierge/marketplace/internal/observability"
)

// Instrumented bounds every call with a timeout and records latency.
// A call that runs out of time returns an error wrapping ErrTimeout; its
// outcome at the processor is unknown.
type Instrumented struct {
	inner   Gateway
	timeout time.Duration
}

func NewInstrumented(inner Gateway, timeout time.Duration) *Instrumented {
	return &Instrumented{inner: inner, timeout: timeout}
}

func (g *Instrumented) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result = "timeout"
			err = fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
		}
	}
	observability.ObserveGatewayCall(op, result, time.Since(start))
	return err
}

func (g *Instrumented) OpenHold(ctx context.Context, req HoldRequest) (Hold, error) {
	var hold Hold
	err := g.call(ctx, "open_hold", func(ctx context.Context) error {
		var err error
		hold, err = g.inner.OpenHold(ctx, req)
		return err
	})
	return hold, err
}

func (g *Instrumented) HoldStatus(ctx context.Context, reference string) (HoldStatus, error) {
	var status HoldStatus
	err := g.call(ctx, "hold_status", func(ctx context.Context) error {
		var err error
		status, err = g.inner.HoldStatus(ctx, reference)
		return err
	})
	return status, err
}

func (g *Instrumented) Capture(ctx context.Context, reference, idempotencyKey string) (string, error) {
	var charge string
	err := g.call(ctx, "capture", func(ctx context.Context) error {
		var err error
		charge, err = g.inner.Capture(ctx, reference, idempotencyKey)
		return err
	})
	return charge, err
}

func (g *Instrumented) ChargeReference(ctx context.Context, reference string) (string, error) {
	var charge string
	err := g.call(ctx, "charge_reference", func(ctx context.Context) error {
		var err error
		charge, err = g.inner.ChargeReference(ctx, reference)
		return err
	})
	return charge, err
}

func (g *Instrumented) CancelHold(ctx context.Context, reference, reason, idempotencyKey string) error {
	return g.call(ctx, "cancel_hold", func(ctx context.Context) error {
		return g.inner.CancelHold(ctx, reference, reason, idempotencyKey)
	})
}

func (g *Instrumented) Refund(ctx context.Context, reference, reason, idempotencyKey string) error {
	return g.call(ctx, "refund", func(ctx context.Context) error {
		return g.inner.Refund(ctx, reference, reason, idempotencyKey)
	})
}

func (g *Instrumented) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	var ref string
	err := g.call(ctx, "transfer", func(ctx context.Context) error {
		var err error
		ref, err = g.inner.Transfer(ctx, req)
		return err
	})
	return ref, err
}

func (g *Instrumented) CreateConnectedAccount(ctx context.Context, req ConnectedAccountRequest) (string, error) {
	var id string
	err := g.call(ctx, "create_account", func(ctx context.Context) error {
		var err error
		id, err = g.inner.CreateConnectedAccount(ctx, req)
		return err
	})
	return id, err
}

func (g *Instrumented) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	var url string
	err := g.call(ctx, "create_onboarding_link", func(ctx context.Context) error {
		var err error
		url, err = g.inner.CreateOnboardingLink(ctx, accountID, returnURL, refreshURL)
		return err
	})
	return url, err
}

func (g *Instrumented) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	var sess CheckoutSession
	err := g.call(ctx, "create_checkout", func(ctx context.Context) error {
		var err error
		sess, err = g.inner.CreateCheckoutSession(ctx, req)
		return err
	})
	return sess, err
}

// ParseEvent is local signature verification and is not timed.
func (g *Instrumented) ParseEvent(payload []byte, signature string) (Event, error) {
	return g.inner.ParseEvent(payload, signature)
}
