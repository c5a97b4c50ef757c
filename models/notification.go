package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

// Notification is the in-app feed row shown on the dashboard bell.
// It is written in the same transaction as the lifecycle transition.
type Notification struct {
	ID        int              `gorm:"primary_key" json:"id"`
	FirId     int              `gorm:"index;not null" json:"firId"`
	FIRNumber string           `gorm:"column:fir_number;size:64;index" json:"firNumber"`
	Message   string           `gorm:"size:255;not null" json:"message"`
	Type      NotificationType `gorm:"type:enum('submission','approval','rejection');not null;default:'submission'" json:"type"`
	Timestamp time.Time        `gorm:"autoCreateTime;index" json:"timestamp"`
}

// FIREventRecord is the transactional outbox row behind the pubsub
// side-channel. Rows are inserted in the lifecycle transaction and
// published after commit by the dispatcher, so a pubsub outage never
// rolls back a transition.
type FIREventRecord struct {
	ID        int          `gorm:"primary_key;index:idx_fir_outbox_dispatch,priority:3" json:"id"`
	FirId     int          `gorm:"index;not null" json:"fir_id"`
	FirNumber string       `gorm:"size:64;index" json:"fir_number"`
	EventType FIREventType `gorm:"type:enum('fir_submitted','fir_approved','fir_rejected');not null" json:"event_type"`
	Message   string       `gorm:"size:255" json:"message"`
	Payload   []byte       `gorm:"type:blob" json:"payload"`
	// Outbox metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_fir_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_fir_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record FIREventRecord) config.PubSubMessage {
	return config.PubSubMessage{
		FirId:         record.FirId,
		FirNumber:     record.FirNumber,
		EventType:     string(record.EventType),
		Message:       record.Message,
		Payload:       string(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}

// RecordFIREvent writes the notification row and the outbox row inside
// the caller's transaction. It must be called before the transaction
// commits so the event exists iff the transition committed.
func RecordFIREvent(tx *gorm.DB, ctx context.Context, eventType FIREventType, firId int, firNumber string, message string, payload interface{}) error {

	notification := Notification{
		FirId:     firId,
		FIRNumber: firNumber,
		Message:   message,
		Type:      notificationTypeForEvent(eventType),
	}
	if err := tx.Create(&notification).Error; err != nil {
		return err
	}

	var payloadBytes []byte
	if payload != nil {
		encoded, err := utils.MarshalToJSON(payload)
		if err != nil {
			return err
		}
		payloadBytes = []byte(encoded)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	record := FIREventRecord{
		FirId:         firId,
		FirNumber:     firNumber,
		EventType:     eventType,
		Message:       message,
		Payload:       payloadBytes,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}

// GetRecentNotifications returns the latest feed entries, newest first.
func GetRecentNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	db := config.GetDB()
	var notes []*Notification
	if err := db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
