package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrMockUnavailable is returned by injected or random mock failures.
var ErrMockUnavailable = errors.New("gateway temporarily unavailable")

type mockHold struct {
	amount    int64
	currency  string
	status    HoldStatus
	refunded  bool
	captureBy string
	cancelBy  string
	charge    string
}

// MockGateway is an in-memory gateway for local runs and tests. Holds are
// authorized immediately unless AutoAuthorize is false, in which case
// Authorize simulates the payer confirming client-side.
type MockGateway struct {
	// FailureRate is the probability of a random failure (0.0 to 1.0).
	FailureRate float64
	// Latency is applied to every call.
	Latency       time.Duration
	AutoAuthorize bool
	BaseURL       string

	hmacKey []byte
	skipSig bool

	mu        sync.Mutex
	seq       int
	holds     map[string]*mockHold
	transfers map[string]string
	failures  map[string]int
	lost      map[string]int
	calls     map[string]int

	Transfers []TransferRequest
	Checkouts []CheckoutRequest
}

// NewMockGateway creates a deterministic mock. hmacKey signs webhook events
// with the "sha256=" scheme; skipSignature disables verification.
func NewMockGateway(hmacKey string, skipSignature bool) *MockGateway {
	return &MockGateway{
		AutoAuthorize: true,
		BaseURL:       "https://mock-gateway.local",
		hmacKey:       []byte(hmacKey),
		skipSig:       skipSignature,
		holds:         make(map[string]*mockHold),
		transfers:     make(map[string]string),
		failures:      make(map[string]int),
		lost:          make(map[string]int),
		calls:         make(map[string]int),
	}
}

// FailNext makes the next n calls of op fail with ErrMockUnavailable.
func (g *MockGateway) FailNext(op string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = n
}

// LoseNextResponse makes the next n calls of op take effect but still fail
// with ErrMockUnavailable, like a processor call whose reply never arrived.
// Only capture, cancel_hold and transfer honor it.
func (g *MockGateway) LoseNextResponse(op string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lost[op] = n
}

// Calls reports how many times op was invoked, failures included.
func (g *MockGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Authorize marks a pending hold as authorized by the payer.
func (g *MockGateway) Authorize(reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return ErrHoldNotFound
	}
	if h.status == HoldPending {
		h.status = HoldAuthorized
	}
	return nil
}

// begin records the call, applies latency and decides injected failures.
// It must be called without g.mu held.
func (g *MockGateway) begin(ctx context.Context, op string) error {
	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	if n := g.failures[op]; n > 0 {
		g.failures[op] = n - 1
		return ErrMockUnavailable
	}
	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return ErrMockUnavailable
	}
	return nil
}

// reply reports a lost response for op. It must be called with g.mu held.
func (g *MockGateway) reply(op string) error {
	if n := g.lost[op]; n > 0 {
		g.lost[op] = n - 1
		return ErrMockUnavailable
	}
	return nil
}

func (g *MockGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_mock_%06d", prefix, g.seq)
}

func (g *MockGateway) OpenHold(ctx context.Context, req HoldRequest) (Hold, error) {
	if err := g.begin(ctx, "open_hold"); err != nil {
		return Hold{}, err
	}
	if req.AmountMinor <= 0 {
		return Hold{}, fmt.Errorf("amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.nextID("pi")
	status := HoldPending
	if g.AutoAuthorize {
		status = HoldAuthorized
	}
	g.holds[ref] = &mockHold{amount: req.AmountMinor, currency: req.Currency, status: status}
	return Hold{Reference: ref, ClientSecret: ref + "_secret"}, nil
}

func (g *MockGateway) HoldStatus(ctx context.Context, reference string) (HoldStatus, error) {
	if err := g.begin(ctx, "hold_status"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return "", ErrHoldNotFound
	}
	return h.status, nil
}

func (g *MockGateway) Capture(ctx context.Context, reference, idempotencyKey string) (string, error) {
	if err := g.begin(ctx, "capture"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return "", ErrHoldNotFound
	}
	switch h.status {
	case HoldAuthorized:
		h.status = HoldCaptured
		h.captureBy = idempotencyKey
		h.charge = g.nextID("ch")
		return h.charge, g.reply("capture")
	case HoldCaptured:
		if idempotencyKey != "" && h.captureBy == idempotencyKey {
			return h.charge, g.reply("capture")
		}
	}
	return "", fmt.Errorf("hold %s cannot be captured in status %s", reference, h.status)
}

func (g *MockGateway) ChargeReference(ctx context.Context, reference string) (string, error) {
	if err := g.begin(ctx, "charge_reference"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return "", ErrHoldNotFound
	}
	if h.charge == "" {
		return "", fmt.Errorf("hold %s has no charge in status %s", reference, h.status)
	}
	return h.charge, nil
}

// CancelHold voids a hold. Canceling an already canceled hold fails unless
// the idempotency key matches the call that canceled it.
func (g *MockGateway) CancelHold(ctx context.Context, reference, reason, idempotencyKey string) error {
	if err := g.begin(ctx, "cancel_hold"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return ErrHoldNotFound
	}
	switch h.status {
	case HoldPending, HoldAuthorized:
		h.status = HoldCanceled
		h.cancelBy = idempotencyKey
		return g.reply("cancel_hold")
	case HoldCanceled:
		if idempotencyKey != "" && h.cancelBy == idempotencyKey {
			return g.reply("cancel_hold")
		}
	}
	return fmt.Errorf("hold %s cannot be canceled in status %s", reference, h.status)
}

func (g *MockGateway) Refund(ctx context.Context, reference, reason, idempotencyKey string) error {
	if err := g.begin(ctx, "refund"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	if !ok {
		return ErrHoldNotFound
	}
	if h.status != HoldCaptured {
		return fmt.Errorf("hold %s is not captured", reference)
	}
	h.refunded = true
	return nil
}

// Refunded reports whether a captured hold was refunded.
func (g *MockGateway) Refunded(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[reference]
	return ok && h.refunded
}

func (g *MockGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if err := g.begin(ctx, "transfer"); err != nil {
		return "", err
	}
	if req.AmountMinor <= 0 || req.Destination == "" {
		return "", fmt.Errorf("invalid transfer request")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.IdempotencyKey != "" {
		if ref, ok := g.transfers[req.IdempotencyKey]; ok {
			return ref, g.reply("transfer")
		}
	}
	if req.SourceTransaction != "" && !g.hasCharge(req.SourceTransaction) {
		return "", fmt.Errorf("no such charge: %s", req.SourceTransaction)
	}
	ref := g.nextID("tr")
	if req.IdempotencyKey != "" {
		g.transfers[req.IdempotencyKey] = ref
	}
	g.Transfers = append(g.Transfers, req)
	return ref, g.reply("transfer")
}

func (g *MockGateway) hasCharge(charge string) bool {
	for _, h := range g.holds {
		if h.charge == charge {
			return true
		}
	}
	return false
}

func (g *MockGateway) CreateConnectedAccount(ctx context.Context, req ConnectedAccountRequest) (string, error) {
	if err := g.begin(ctx, "create_account"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextID("acct"), nil
}

func (g *MockGateway) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	if err := g.begin(ctx, "create_onboarding_link"); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/onboarding/%s?return=%s", g.BaseURL, accountID, returnURL), nil
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if err := g.begin(ctx, "create_checkout"); err != nil {
		return CheckoutSession{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("cs")
	g.Checkouts = append(g.Checkouts, req)
	return CheckoutSession{ID: id, URL: g.BaseURL + "/checkout/" + id}, nil
}

// mockEvent is the wire format of mock webhook deliveries.
type mockEvent struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data struct {
		SessionID     string            `json:"session_id,omitempty"`
		PaymentStatus string            `json:"payment_status,omitempty"`
		Reference     string            `json:"reference,omitempty"`
		AmountTotal   int64             `json:"amount_total,omitempty"`
		Metadata      map[string]string `json:"metadata,omitempty"`
	} `json:"data"`
}

func (g *MockGateway) ParseEvent(payload []byte, signature string) (Event, error) {
	if !g.verifyHMAC(payload, signature) {
		return Event{}, ErrInvalidSignature
	}
	var raw mockEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(raw.ID) == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("%w: id and type are required", ErrInvalidEvent)
	}
	return Event{
		ID:            raw.ID,
		Type:          raw.Type,
		SessionID:     raw.Data.SessionID,
		PaymentStatus: raw.Data.PaymentStatus,
		Reference:     raw.Data.Reference,
		AmountTotal:   raw.Data.AmountTotal,
		Metadata:      raw.Data.Metadata,
	}, nil
}

// EncodeEvent renders e in the mock wire format together with its signature.
func (g *MockGateway) EncodeEvent(e Event) ([]byte, string, error) {
	var raw mockEvent
	raw.ID = e.ID
	raw.Type = e.Type
	raw.Data.SessionID = e.SessionID
	raw.Data.PaymentStatus = e.PaymentStatus
	raw.Data.Reference = e.Reference
	raw.Data.AmountTotal = e.AmountTotal
	raw.Data.Metadata = e.Metadata
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, "", err
	}
	return payload, g.Sign(payload), nil
}

// Sign computes the "sha256=<hex>" signature of payload.
func (g *MockGateway) Sign(payload []byte) string {
	h := hmac.New(sha256.New, g.hmacKey)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (g *MockGateway) verifyHMAC(payload []byte, signature string) bool {
	if g.skipSig {
		return true
	}
	if len(g.hmacKey) == 0 {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(g.Sign(payload)))
}
