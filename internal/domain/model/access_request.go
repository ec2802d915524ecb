package model

import "time"

// AccessType — тип запрашиваемого доступа.
type AccessType string

const (
	AccessPermanent AccessType = "permanent"
	AccessTemporary AccessType = "temporary"
)

// DurationUnit — единица длительности временного доступа.
type DurationUnit string

const (
	UnitHours DurationUnit = "hours"
	UnitDays  DurationUnit = "days"
)

// RequestStatus — статус запроса доступа.
type RequestStatus string

const (
	// StatusPending — ожидает решения
	StatusPending RequestStatus = "pending"
	// StatusApproved — одобрен (терминальный)
	StatusApproved RequestStatus = "approved"
	// StatusRejected — отклонён (терминальный)
	StatusRejected RequestStatus = "rejected"
)

// AccessRequest — запрос пользователя на получение права.
// Изменяется только при переходе статуса (pending → approved/rejected).
type AccessRequest struct {
	// ID — UUID запроса
	ID string `json:"id"`
	// UserID — кто запросил
	UserID string `json:"user_id"`
	// UserName — кэшированное имя запросившего
	UserName string `json:"user_name"`
	// PermissionID — запрашиваемое право
	PermissionID string `json:"permission_id"`
	// PermissionName — название права из каталога
	PermissionName string `json:"permission_name"`
	// AccessType — permanent или temporary
	AccessType AccessType `json:"access_type"`
	// Duration — длительность (только для temporary)
	Duration int `json:"duration,omitempty"`
	// DurationUnit — hours или days (только для temporary)
	DurationUnit DurationUnit `json:"duration_unit,omitempty"`
	// Reason — обоснование от пользователя (опционально)
	Reason string `json:"reason,omitempty"`
	// Status — текущий статус
	Status RequestStatus `json:"status"`
	// RequestedAt — время создания запроса
	RequestedAt time.Time `json:"requested_at"`
	// RespondedAt — время принятия решения
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	// RespondedBy — кто принял решение
	RespondedBy string `json:"responded_by,omitempty"`
	// ValidUntil — окончание временного доступа (только temporary + approved)
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	// RevokedAt — время досрочного отзыва одобренного доступа
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsTemporary сообщает, запрошен ли временный доступ.
func (r *AccessRequest) IsTemporary() bool {
	return r.AccessType == AccessTemporary
}

// PendingExpiry — запланированный отзыв временного доступа.
// Хранится персистентно, чтобы пережить рестарт процесса.
type PendingExpiry struct {
	// RequestID — запрос, по которому выдан доступ (ключ записи)
	RequestID string `json:"request_id"`
	// UserID — владелец override
	UserID string `json:"user_id"`
	// PermissionID — право, которое будет отозвано
	PermissionID string `json:"permission_id"`
	// ValidUntil — момент отзыва
	ValidUntil time.Time `json:"valid_until"`
}
