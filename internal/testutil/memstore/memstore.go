// Package memstore is an in-memory stand-in for the Postgres store. It keeps
// the same conditional-update semantics and sentinel errors so service and
// handler tests exercise the real concurrency rules without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/repository"
)

// AuditEntry mirrors one audit_log row.
type AuditEntry struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
}

type Store struct {
	mu sync.Mutex

	profiles      map[uuid.UUID]models.Profile
	packages      map[uuid.UUID]models.Package
	bids          map[uuid.UUID]models.Bid
	escrows       []models.EscrowPayment
	notifications []models.Notification
	messages      []models.Message
	purchases     map[string]models.CreditPurchase
	webhookEvents map[string]string
	idempotency   map[string]repository.IdempotencyKey
	audit         []AuditEntry

	// PingErr is returned by Ping when set.
	PingErr error
}

func New() *Store {
	return &Store{
		profiles:      make(map[uuid.UUID]models.Profile),
		packages:      make(map[uuid.UUID]models.Package),
		bids:          make(map[uuid.UUID]models.Bid),
		purchases:     make(map[string]models.CreditPurchase),
		webhookEvents: make(map[string]string),
		idempotency:   make(map[string]repository.IdempotencyKey),
	}
}

func (s *Store) Ping(context.Context) error {
	return s.PingErr
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.profiles[p.ID] = p
}

func (s *Store) PutPackage(p models.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = domain.PackageStatusOpen
	}
	s.packages[p.ID] = p
}

func (s *Store) PutBid(b models.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = domain.BidStatusPending
	}
	s.bids[b.ID] = b
}

// Escrows returns every payment of a package in creation order.
func (s *Store) Escrows(packageID uuid.UUID) []models.EscrowPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowPayment
	for _, p := range s.escrows {
		if p.PackageID == packageID {
			out = append(out, p)
		}
	}
	return out
}

// Audit returns the audit rows written for an entity.
func (s *Store) Audit(entityID uuid.UUID) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, a := range s.audit {
		if a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out
}

// Notifications returns everything addressed to a user, oldest first.
func (s *Store) Notifications(userID uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *Store) writeAudit(entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prev, next string) {
	s.audit = append(s.audit, AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  prev,
		NextState:  next,
	})
}

func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetPackage(_ context.Context, id uuid.UUID) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetBid(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *Store) CreateEscrow(_ context.Context, arg repository.CreateEscrowParams) (*models.EscrowPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.escrows {
		if p.PackageID == arg.PackageID && p.State.IsActive() {
			return nil, repository.ErrDuplicate
		}
		if p.GatewayReference == arg.GatewayReference {
			return nil, repository.ErrDuplicate
		}
	}
	p := models.EscrowPayment{
		ID:               arg.ID,
		PackageID:        arg.PackageID,
		BidID:            arg.BidID,
		MemberID:         arg.MemberID,
		ProviderID:       arg.ProviderID,
		GrossCents:       arg.GrossCents,
		Currency:         arg.Currency,
		State:            domain.EscrowStateCreated,
		GatewayReference: arg.GatewayReference,
		CreatedAt:        arg.CreatedAt,
	}
	s.escrows = append(s.escrows, p)
	s.writeAudit(domain.AuditEntityEscrow, arg.ID, arg.ActorID, "created", domain.EscrowStateNone.String(), domain.EscrowStateCreated.String())
	return &p, nil
}

func (s *Store) ActiveEscrow(_ context.Context, packageID uuid.UUID) (*models.EscrowPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.escrows) - 1; i >= 0; i-- {
		if p := s.escrows[i]; p.PackageID == packageID && p.State.IsActive() {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) LatestEscrow(_ context.Context, packageID uuid.UUID) (*models.EscrowPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.escrows) - 1; i >= 0; i-- {
		if p := s.escrows[i]; p.PackageID == packageID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) EscrowByReference(_ context.Context, reference string) (*models.EscrowPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.escrows {
		if p.GatewayReference == reference {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) escrowIndex(id uuid.UUID) int {
	for i, p := range s.escrows {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) TransitionEscrow(_ context.Context, t repository.EscrowTransition) (*models.EscrowPayment, error) {
	if !domain.CanTransition(t.From, t.To) {
		return nil, repository.ErrStateConflict
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.escrowIndex(t.EscrowID)
	if i < 0 || s.escrows[i].State != t.From {
		return nil, repository.ErrStateConflict
	}
	p := &s.escrows[i]
	p.State = t.To
	at := t.At
	switch t.To {
	case domain.EscrowStateHeld:
		p.HeldAt = &at
	case domain.EscrowStateReleased:
		p.ReleasedAt = &at
		p.TransferReference = t.TransferReference
	case domain.EscrowStateRefunded:
		p.RefundedAt = &at
		p.RefundReason = t.RefundReason
	}
	action := t.Action
	if action == "" {
		action = t.To.String()
	}
	s.writeAudit(domain.AuditEntityEscrow, t.EscrowID, t.ActorID, action, t.From.String(), t.To.String())
	out := *p
	return &out, nil
}

func (s *Store) MarkEscrowCaptured(_ context.Context, escrowID uuid.UUID, at time.Time, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.escrowIndex(escrowID)
	if i < 0 || s.escrows[i].State != domain.EscrowStateHeld || s.escrows[i].CapturedAt != nil {
		return repository.ErrStateConflict
	}
	s.escrows[i].CapturedAt = &at
	held := domain.EscrowStateHeld.String()
	s.writeAudit(domain.AuditEntityEscrow, escrowID, actorID, "captured", held, held)
	return nil
}

func (s *Store) ListStaleCreatedEscrows(_ context.Context, before time.Time, limit int) ([]models.EscrowPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowPayment
	for _, p := range s.escrows {
		if p.State == domain.EscrowStateCreated && p.CreatedAt.Before(before) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) CreateBid(_ context.Context, arg repository.CreateBidParams) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	provider, ok := s.profiles[arg.ProviderID]
	if !ok || provider.BidCredits <= 0 {
		return nil, repository.ErrInsufficientCredits
	}
	for _, b := range s.bids {
		if b.PackageID == arg.PackageID && b.ProviderID == arg.ProviderID {
			return nil, repository.ErrDuplicate
		}
	}
	provider.BidCredits--
	s.profiles[arg.ProviderID] = provider
	b := models.Bid{
		ID:         arg.ID,
		PackageID:  arg.PackageID,
		ProviderID: arg.ProviderID,
		PriceCents: arg.PriceCents,
		Note:       arg.Note,
		Status:     domain.BidStatusPending,
		CreatedAt:  arg.CreatedAt,
	}
	s.bids[b.ID] = b
	s.writeAudit(domain.AuditEntityCredit, arg.ProviderID, &arg.ProviderID, "bid_credit_consumed", "", "")
	return &b, nil
}

func (s *Store) AcceptBid(_ context.Context, packageID, bidID uuid.UUID, at time.Time, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[packageID]
	if !ok || pkg.Status != domain.PackageStatusOpen {
		return repository.ErrStateConflict
	}
	bid, ok := s.bids[bidID]
	if !ok || bid.PackageID != packageID || bid.Status != domain.BidStatusPending {
		return repository.ErrStateConflict
	}
	for id, b := range s.bids {
		if b.PackageID == packageID && id != bidID && b.Status == domain.BidStatusPending {
			b.Status = domain.BidStatusRejected
			s.bids[id] = b
		}
	}
	bid.Status = domain.BidStatusAccepted
	s.bids[bidID] = bid
	pkg.Status = domain.PackageStatusAccepted
	pkg.AcceptedBidID = &bidID
	pkg.UpdatedAt = at
	s.packages[packageID] = pkg
	s.writeAudit(domain.AuditEntityPackage, packageID, actorID, "bid_accepted", domain.PackageStatusOpen, domain.PackageStatusAccepted)
	return nil
}

func (s *Store) UpdatePackageStatus(_ context.Context, packageID uuid.UUID, from, to string, at time.Time, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[packageID]
	if !ok || pkg.Status != from {
		return repository.ErrStateConflict
	}
	pkg.Status = to
	pkg.UpdatedAt = at
	s.packages[packageID] = pkg
	s.writeAudit(domain.AuditEntityPackage, packageID, actorID, "status_changed", from, to)
	return nil
}

func (s *Store) CreateMessage(_ context.Context, m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *Store) SetPayoutAccount(_ context.Context, profileID uuid.UUID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok || p.PayoutAccountID != nil {
		return repository.ErrStateConflict
	}
	p.PayoutAccountID = &accountID
	s.profiles[profileID] = p
	return nil
}

func (s *Store) InsertNotification(_ context.Context, n models.Notification) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Read = false
	s.notifications = append(s.notifications, n)
	return &n, nil
}

// ListNotifications pages newest first like the SQL query.
func (s *Store) ListNotifications(_ context.Context, f repository.NotificationFilter) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Notification
	for _, n := range s.notifications {
		if n.UserID == f.UserID && (!f.UnreadOnly || !n.Read) {
			matched = append(matched, n)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if f.Offset >= len(matched) {
		return []models.Notification{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, x := range s.notifications {
		if x.UserID == userID && !x.Read {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *Store) GrantBidCredits(_ context.Context, g repository.CreditGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.purchases[g.SessionID]; ok {
		return false, nil
	}
	p, ok := s.profiles[g.ProviderID]
	if !ok {
		return false, repository.ErrNotFound
	}
	p.BidCredits += g.Credits
	s.profiles[g.ProviderID] = p
	s.purchases[g.SessionID] = models.CreditPurchase{
		ID:          uuid.New(),
		ProviderID:  g.ProviderID,
		PackID:      g.PackID,
		SessionID:   g.SessionID,
		Credits:     g.Credits,
		AmountCents: g.AmountCents,
		CreatedAt:   g.At,
	}
	s.writeAudit(domain.AuditEntityCredit, g.ProviderID, nil, "bid_credits_granted", "", "")
	return true, nil
}

func (s *Store) WebhookEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.webhookEvents[eventID]
	return ok, nil
}

func (s *Store) RecordWebhookEvent(_ context.Context, eventID, eventType string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhookEvents[eventID]; !ok {
		s.webhookEvents[eventID] = eventType
	}
	return nil
}

// The idempotency methods match *repository.Queries, including pgx.ErrNoRows
// for missing rows and lost reservations.

func (s *Store) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idempotency[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (s *Store) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idempotency[arg.IdempotencyKey]; ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	rec := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      time.Now().UTC(),
	}
	s.idempotency[arg.IdempotencyKey] = rec
	return rec, nil
}

func (s *Store) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idempotency[arg.IdempotencyKey]
	if !ok || rec.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	rec.ResponseStatus = arg.ResponseStatus
	rec.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	rec.ContentType = arg.ContentType
	rec.InProgress = false
	s.idempotency[arg.IdempotencyKey] = rec
	return rec, nil
}

func (s *Store) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idempotency[key]
	if !ok || rec.RequestHash != requestHash || !rec.InProgress {
		return 0, nil
	}
	delete(s.idempotency, key)
	return 1, nil
}
