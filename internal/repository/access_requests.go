package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// AccessRequestRepository — хранилище запросов доступа.
// Запрос изменяется только через Transition.
type AccessRequestRepository interface {
	// Create сохраняет новый запрос. ErrConflict — если ID занят или у
	// пользователя уже есть pending-запрос на это же право.
	Create(ctx context.Context, req model.AccessRequest) error
	// Get возвращает запрос по ID или ErrNotFound.
	Get(id string) (model.AccessRequest, error)
	// List возвращает запросы, прошедшие filter (nil — все),
	// новые первыми.
	List(filter func(model.AccessRequest) bool) []model.AccessRequest
	// Transition применяет fn к копии запроса и сохраняет результат.
	// fn выполняется под блокировкой писателя: между чтением и записью
	// запрос никто не изменит. Ошибка fn возвращается как есть.
	Transition(ctx context.Context, id string, fn func(*model.AccessRequest) error) (model.AccessRequest, error)
	// Load загружает запросы из хранилища.
	Load(ctx context.Context) error
}

type accessRequests map[string]model.AccessRequest

// accessRequestRepo — реализация AccessRequestRepository.
type accessRequestRepo struct {
	c *collection[accessRequests]
}

// NewAccessRequestRepository создаёт хранилище запросов поверх store.
func NewAccessRequestRepository(store Store) AccessRequestRepository {
	return &accessRequestRepo{c: newCollection(KeyAccessRequests, store, accessRequests{})}
}

func (r *accessRequestRepo) Create(ctx context.Context, req model.AccessRequest) error {
	return r.c.update(ctx, func(cur accessRequests) (accessRequests, error) {
		if _, exists := cur[req.ID]; exists {
			return nil, fmt.Errorf("запрос %s: %w", req.ID, ErrConflict)
		}
		for _, other := range cur {
			if other.Status == model.StatusPending &&
				other.UserID == req.UserID &&
				other.PermissionID == req.PermissionID {
				return nil, fmt.Errorf("pending-запрос %s на %s: %w", other.ID, req.PermissionID, ErrConflict)
			}
		}

		next := make(accessRequests, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[req.ID] = req
		return next, nil
	})
}

func (r *accessRequestRepo) Get(id string) (model.AccessRequest, error) {
	req, ok := r.c.snapshot()[id]
	if !ok {
		return model.AccessRequest{}, ErrNotFound
	}
	return req, nil
}

func (r *accessRequestRepo) List(filter func(model.AccessRequest) bool) []model.AccessRequest {
	snap := r.c.snapshot()
	out := make([]model.AccessRequest, 0, len(snap))
	for _, req := range snap {
		if filter == nil || filter(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}

func (r *accessRequestRepo) Transition(ctx context.Context, id string, fn func(*model.AccessRequest) error) (model.AccessRequest, error) {
	var result model.AccessRequest
	err := r.c.update(ctx, func(cur accessRequests) (accessRequests, error) {
		req, ok := cur[id]
		if !ok {
			return nil, ErrNotFound
		}
		if err := fn(&req); err != nil {
			return nil, err
		}

		next := make(accessRequests, len(cur))
		for k, v := range cur {
			next[k] = v
		}
		next[id] = req
		result = req
		return next, nil
	})
	if err != nil {
		return model.AccessRequest{}, err
	}
	return result, nil
}

func (r *accessRequestRepo) Load(ctx context.Context) error {
	return r.c.load(ctx)
}
