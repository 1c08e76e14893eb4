package domain

// EscrowState is the lifecycle state of an escrow payment.
type EscrowState string

const (
	EscrowStateNone     EscrowState = "none"
	EscrowStateCreated  EscrowState = "created"
	EscrowStateHeld     EscrowState = "held"
	EscrowStateReleased EscrowState = "released"
	EscrowStateRefunded EscrowState = "refunded"

	// Package statuses
	PackageStatusOpen       = "open"
	PackageStatusAccepted   = "accepted"
	PackageStatusInProgress = "in_progress"
	PackageStatusCompleted  = "completed"
	PackageStatusCancelled  = "cancelled"

	// Bid statuses
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"

	// Audit entity types
	AuditEntityEscrow  = "escrow_payment"
	AuditEntityCredit  = "bid_credit"
	AuditEntityPackage = "package"

	// Role carried by service-to-service tokens.
	RoleService = "service_role"
)

// NotificationType enumerates user-facing notification kinds.
type NotificationType string

const (
	NotificationBidReceived     NotificationType = "bid_received"
	NotificationBidAccepted     NotificationType = "bid_accepted"
	NotificationWorkStarted     NotificationType = "work_started"
	NotificationWorkCompleted   NotificationType = "work_completed"
	NotificationNewMessage      NotificationType = "new_message"
	NotificationPaymentHeld     NotificationType = "payment_held"
	NotificationPaymentReleased NotificationType = "payment_released"
	NotificationPaymentRefunded NotificationType = "payment_refunded"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationBidReceived, NotificationBidAccepted, NotificationWorkStarted,
		NotificationWorkCompleted, NotificationNewMessage, NotificationPaymentHeld,
		NotificationPaymentReleased, NotificationPaymentRefunded:
		return true
	default:
		return false
	}
}

// Link types attached to notifications so clients can deep-link.
const (
	LinkTypePackage = "package"
	LinkTypeBid     = "bid"
	LinkTypeMessage = "message"
	LinkTypeEscrow  = "escrow"
)
