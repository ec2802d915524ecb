// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/request"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
)

var (
	// ErrValidation — некорректные аргументы операции.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — неизвестный запрос, пользователь или роль.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrInvalidState — операция недопустима в текущем статусе запроса.
	ErrInvalidState = errors.New("недопустимое состояние запроса")
	// ErrConflict — конфликт (у пользователя уже есть pending-запрос на это право).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrForbiddenRole — таблицы прав не применяются к роли (admin).
	ErrForbiddenRole = errors.New("роль admin не использует таблицы прав")
)

// mapDomainError переводит ошибки домена и репозиториев в ошибки сервиса.
// Неизвестные ошибки возвращаются как есть.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}

	var ve *request.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", ErrValidation, ve.Error())
	}
	var te *request.TransitionError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %s", ErrInvalidState, te.Error())
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	return err
}
