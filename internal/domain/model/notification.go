package model

import "time"

// NotificationType — тип уведомления.
type NotificationType string

const (
	NotifyRequestSubmitted NotificationType = "access_request.submitted"
	NotifyRequestApproved  NotificationType = "access_request.approved"
	NotifyRequestRejected  NotificationType = "access_request.rejected"
	NotifyRequestRevoked   NotificationType = "access_request.revoked"
	NotifyAccessExpired    NotificationType = "access.expired"
)

// AudienceApprovers — адресат уведомлений для согласующих.
const AudienceApprovers = "approvers"

// Notification — событие для внешнего сервиса уведомлений.
type Notification struct {
	ID      string           `json:"id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	// Timestamp — время события
	Timestamp time.Time `json:"timestamp"`
	// RecipientUserID — адресат; пусто, если уведомление для группы Audience
	RecipientUserID string `json:"recipient_user_id,omitempty"`
	// Audience — группа адресатов (approvers), если RecipientUserID пуст
	Audience string         `json:"audience,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}
