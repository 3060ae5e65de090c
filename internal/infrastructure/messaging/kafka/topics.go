package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic constants.
const (
	// TopicDocumentPromoted announces a staged upload becoming a permanent
	// document.
	TopicDocumentPromoted = "document.promoted"

	// TopicInstanceCompleted announces obligation instance completions,
	// manual and cascade alike.
	TopicInstanceCompleted = "instance.completed"

	// TopicInstancesGenerated announces one generator run's outcome.
	TopicInstancesGenerated = "instance.generated"

	// TopicNotification feeds the external notification dispatcher.
	TopicNotification = "notification.send"

	// TopicAuditLog receives every state-changing operation for the
	// audit trail.
	TopicAuditLog = "audit.log"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEnvelope wraps a payload in a fresh envelope.
func NewEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        "fiscore",
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "1.0",
		Payload:       raw,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Payload structs
// ─────────────────────────────────────────────────────────────────────────────

// DocumentPromotedPayload describes a successful promotion.
type DocumentPromotedPayload struct {
	DocumentID     string    `json:"document_id"`
	SourceUploadID string    `json:"source_upload_id"`
	OrgID          string    `json:"org_id"`
	ClientID       string    `json:"client_id"`
	ObligationID   string    `json:"obligation_id"`
	Competence     string    `json:"competence"`
	FileName       string    `json:"file_name"`
	PromotedAt     time.Time `json:"promoted_at"`
}

// InstanceCompletedPayload describes a completion transition.
type InstanceCompletedPayload struct {
	InstanceID   string    `json:"instance_id"`
	OrgID        string    `json:"org_id"`
	ClientID     string    `json:"client_id"`
	ObligationID string    `json:"obligation_id"`
	Competence   string    `json:"competence"`
	Status       string    `json:"status"`
	Source       string    `json:"source"`
	CompletedAt  time.Time `json:"completed_at"`
}

// InstancesGeneratedPayload summarizes one generator run.
type InstancesGeneratedPayload struct {
	OrgID            string    `json:"org_id"`
	Competence       string    `json:"competence"`
	InstancesCreated int       `json:"instances_created"`
	LinksVisited     int       `json:"links_visited"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// NotificationPayload asks the external dispatcher to notify a client
// about a delivered document.
type NotificationPayload struct {
	DocumentID string `json:"document_id"`
	OrgID      string `json:"org_id"`
	ClientID   string `json:"client_id"`
	FileName   string `json:"file_name"`
}

// AuditLogPayload records one state-changing operation.
type AuditLogPayload struct {
	OrgID      string            `json:"org_id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
