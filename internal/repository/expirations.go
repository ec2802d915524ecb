package repository

import (
	"context"
	"sort"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// ExpiryRepository — персистентный список запланированных отзывов
// временного доступа. Ключ записи — ID запроса.
type ExpiryRepository interface {
	// Put сохраняет (или заменяет) запись.
	Put(ctx context.Context, e model.PendingExpiry) error
	// Take удаляет запись и возвращает её. false — записи уже нет
	// (отзыв выполнен или отменён). Take — единственный способ получить
	// право на выполнение отзыва, поэтому отзыв выполняется не более одного раза.
	Take(ctx context.Context, requestID string) (model.PendingExpiry, bool, error)
	// Get возвращает запись без удаления.
	Get(requestID string) (model.PendingExpiry, bool)
	// List возвращает все записи в порядке valid_until.
	List() []model.PendingExpiry
	// Due возвращает записи с valid_until <= now.
	Due(now time.Time) []model.PendingExpiry
	// ForPermission возвращает записи пользователя по праву.
	ForPermission(userID, permissionID string) []model.PendingExpiry
	// Load загружает записи из хранилища.
	Load(ctx context.Context) error
}

type pendingExpirations map[string]model.PendingExpiry

// expiryRepo — реализация ExpiryRepository.
type expiryRepo struct {
	c *collection[pendingExpirations]
}

// NewExpiryRepository создаёт список отзывов поверх store.
func NewExpiryRepository(store Store) ExpiryRepository {
	return &expiryRepo{c: newCollection(KeyPendingExpirations, store, pendingExpirations{})}
}

func (r *expiryRepo) Put(ctx context.Context, e model.PendingExpiry) error {
	return r.c.update(ctx, func(cur pendingExpirations) (pendingExpirations, error) {
		next := make(pendingExpirations, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[e.RequestID] = e
		return next, nil
	})
}

func (r *expiryRepo) Take(ctx context.Context, requestID string) (model.PendingExpiry, bool, error) {
	if _, ok := r.c.snapshot()[requestID]; !ok {
		return model.PendingExpiry{}, false, nil
	}

	var taken model.PendingExpiry
	found := false
	err := r.c.update(ctx, func(cur pendingExpirations) (pendingExpirations, error) {
		e, ok := cur[requestID]
		if !ok {
			return cur, nil
		}
		taken, found = e, true

		next := make(pendingExpirations, len(cur))
		for k, v := range cur {
			if k != requestID {
				next[k] = v
			}
		}
		return next, nil
	})
	if err != nil {
		return model.PendingExpiry{}, false, err
	}
	return taken, found, nil
}

func (r *expiryRepo) Get(requestID string) (model.PendingExpiry, bool) {
	e, ok := r.c.snapshot()[requestID]
	return e, ok
}

func (r *expiryRepo) List() []model.PendingExpiry {
	return r.filter(func(model.PendingExpiry) bool { return true })
}

func (r *expiryRepo) Due(now time.Time) []model.PendingExpiry {
	return r.filter(func(e model.PendingExpiry) bool { return !e.ValidUntil.After(now) })
}

func (r *expiryRepo) ForPermission(userID, permissionID string) []model.PendingExpiry {
	return r.filter(func(e model.PendingExpiry) bool {
		return e.UserID == userID && e.PermissionID == permissionID
	})
}

func (r *expiryRepo) Load(ctx context.Context) error {
	return r.c.load(ctx)
}

func (r *expiryRepo) filter(keep func(model.PendingExpiry) bool) []model.PendingExpiry {
	snap := r.c.snapshot()
	out := make([]model.PendingExpiry, 0, len(snap))
	for _, e := range snap {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ValidUntil.Equal(out[j].ValidUntil) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].ValidUntil.Before(out[j].ValidUntil)
	})
	return out
}
