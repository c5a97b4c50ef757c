package models

// FIRStatus is the lifecycle state of a FIR. Draft and pending_approval
// rows live in draft_firs; approved rows live in final_firs.
type FIRStatus string

const (
	FIRStatusDraft           FIRStatus = "draft"
	FIRStatusPendingApproval FIRStatus = "pending_approval"
	FIRStatusApproved        FIRStatus = "approved"
)

// allowedTransitions is the full state machine. Approved is terminal.
var allowedTransitions = map[FIRStatus][]FIRStatus{
	FIRStatusDraft:           {FIRStatusPendingApproval},
	FIRStatusPendingApproval: {FIRStatusApproved, FIRStatusDraft},
	FIRStatusApproved:        {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from FIRStatus, to FIRStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsValidFIRStatus(s string) bool {
	switch FIRStatus(s) {
	case FIRStatusDraft, FIRStatusPendingApproval, FIRStatusApproved:
		return true
	}
	return false
}

// FIREventType keys the pubsub side-channel. Consumers key on it.
type FIREventType string

const (
	FIREventSubmitted FIREventType = "fir_submitted"
	FIREventApproved  FIREventType = "fir_approved"
	FIREventRejected  FIREventType = "fir_rejected"
)

// NotificationType is the legacy value set the dashboard feed expects.
type NotificationType string

const (
	NotificationTypeSubmission NotificationType = "submission"
	NotificationTypeApproval   NotificationType = "approval"
	NotificationTypeRejection  NotificationType = "rejection"
)

// notificationTypeForEvent maps outbox event types onto feed types.
func notificationTypeForEvent(eventType FIREventType) NotificationType {
	switch eventType {
	case FIREventApproved:
		return NotificationTypeApproval
	case FIREventRejected:
		return NotificationTypeRejection
	default:
		return NotificationTypeSubmission
	}
}

// Outbox publish statuses for FIREventRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
