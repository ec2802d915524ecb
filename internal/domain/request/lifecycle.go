// Пакет request — жизненный цикл запроса доступа.
//
// Конечный автомат:
//   - pending → approved (терминальный)
//   - pending → rejected (терминальный)
//
// Возврата в pending нет. Для temporary + approved вычисляется
// valid_until = время решения + длительность.
package request

import (
	"fmt"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// validTransitions — матрица допустимых переходов статуса.
var validTransitions = map[model.RequestStatus]map[model.RequestStatus]bool{
	model.StatusPending:  {model.StatusApproved: true, model.StatusRejected: true},
	model.StatusApproved: {},
	model.StatusRejected: {},
}

// MaxDuration — верхняя граница длительности временного доступа.
const MaxDuration = 365 * 24 * time.Hour

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.RequestStatus) bool {
	return validTransitions[from][to]
}

// IsTerminal сообщает, что статус окончательный.
func IsTerminal(s model.RequestStatus) bool {
	return s == model.StatusApproved || s == model.StatusRejected
}

// ParseStatus преобразует строку в RequestStatus.
func ParseStatus(s string) (model.RequestStatus, error) {
	st := model.RequestStatus(s)
	if _, ok := validTransitions[st]; !ok {
		return "", &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("недопустимый статус %q, допустимые: pending, approved, rejected", s),
		}
	}
	return st, nil
}

// ParseDecision преобразует строку решения в терминальный статус.
func ParseDecision(s string) (model.RequestStatus, error) {
	st := model.RequestStatus(s)
	if !IsTerminal(st) {
		return "", &ValidationError{
			Field:   "decision",
			Message: fmt.Sprintf("недопустимое решение %q, допустимые: approved, rejected", s),
		}
	}
	return st, nil
}

// SubmitInput — параметры нового запроса доступа.
type SubmitInput struct {
	AccessType   model.AccessType
	Duration     int
	DurationUnit model.DurationUnit
}

// ValidateSubmit проверяет тип доступа и длительность.
// Для temporary обязательны duration > 0 и duration_unit (hours|days).
func ValidateSubmit(in SubmitInput) error {
	switch in.AccessType {
	case model.AccessPermanent:
		return nil
	case model.AccessTemporary:
	default:
		return &ValidationError{
			Field:   "access_type",
			Message: fmt.Sprintf("недопустимый тип доступа %q, допустимые: permanent, temporary", in.AccessType),
		}
	}

	if in.Duration <= 0 {
		return &ValidationError{Field: "duration", Message: "для временного доступа duration обязателен и должен быть больше 0"}
	}
	if in.DurationUnit == "" {
		return &ValidationError{Field: "duration_unit", Message: "для временного доступа duration_unit обязателен"}
	}

	d, err := DurationOf(in.Duration, in.DurationUnit)
	if err != nil {
		return err
	}
	if d > MaxDuration {
		return &ValidationError{Field: "duration", Message: "длительность временного доступа больше 365 дней"}
	}
	return nil
}

// DurationOf переводит длительность в time.Duration.
// n сверяется с MaxDuration до умножения: большое n не переполняет
// time.Duration.
func DurationOf(n int, unit model.DurationUnit) (time.Duration, error) {
	var step time.Duration
	switch unit {
	case model.UnitHours:
		step = time.Hour
	case model.UnitDays:
		step = 24 * time.Hour
	default:
		return 0, &ValidationError{
			Field:   "duration_unit",
			Message: fmt.Sprintf("недопустимая единица %q, допустимые: hours, days", unit),
		}
	}
	if int64(n) > int64(MaxDuration/step) {
		return 0, &ValidationError{Field: "duration", Message: "длительность временного доступа больше 365 дней"}
	}
	return time.Duration(n) * step, nil
}

// Decide применяет решение к запросу: статус, время и автор решения,
// valid_until для одобренного временного доступа.
// Запрос изменяется только при успехе.
func Decide(r *model.AccessRequest, decision model.RequestStatus, responder string, at time.Time) error {
	if !CanTransition(r.Status, decision) {
		return &TransitionError{From: r.Status, To: decision}
	}

	var validUntil *time.Time
	if decision == model.StatusApproved && r.IsTemporary() {
		d, err := DurationOf(r.Duration, r.DurationUnit)
		if err != nil {
			return err
		}
		if d <= 0 {
			return &ValidationError{Field: "duration", Message: "длительность должна быть больше 0"}
		}
		vu := at.Add(d)
		validUntil = &vu
	}

	respondedAt := at
	r.Status = decision
	r.RespondedAt = &respondedAt
	r.RespondedBy = responder
	r.ValidUntil = validUntil
	return nil
}

// ValidationError — некорректные параметры запроса.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransitionError — недопустимый переход статуса.
type TransitionError struct {
	From model.RequestStatus
	To   model.RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %s → %s недопустим", e.From, e.To)
}
