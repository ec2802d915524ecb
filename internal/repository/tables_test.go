package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// failingStore — Store, который отказывает в записи после armed = true.
type failingStore struct {
	*MemoryStore
	mu    sync.Mutex
	armed bool
}

var errStoreDown = errors.New("хранилище недоступно")

func (s *failingStore) Save(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	armed := s.armed
	s.mu.Unlock()
	if armed {
		return errStoreDown
	}
	return s.MemoryStore.Save(ctx, key, value)
}

func (s *failingStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func TestUserOverrides_MergeKeepsOtherEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewUserOverrideRepository(nil)

	if err := repo.Merge(ctx, "u1", []model.PermissionEntry{{PermissionID: "x", Allowed: true}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Merge(ctx, "u1", []model.PermissionEntry{{PermissionID: "y", Allowed: true}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Merge(ctx, "u1", []model.PermissionEntry{{PermissionID: "x", Allowed: false}}); err != nil {
		t.Fatal(err)
	}

	got := repo.Get("u1")
	if len(got) != 2 || got["x"] != false || got["y"] != true {
		t.Errorf("overrides = %v, хотели x=false y=true", got)
	}

	// Изменение возвращённой копии не влияет на таблицу.
	got["z"] = true
	if _, ok := repo.UserOverride("u1", "z"); ok {
		t.Error("Get() вернул не копию")
	}
}

func TestUserOverrides_Clear(t *testing.T) {
	ctx := context.Background()
	repo := NewUserOverrideRepository(nil)
	_ = repo.Merge(ctx, "u1", []model.PermissionEntry{{PermissionID: "x", Allowed: true}})

	removed, err := repo.Clear(ctx, "u1", "x")
	if err != nil || !removed {
		t.Fatalf("Clear() = %v, %v", removed, err)
	}
	if _, ok := repo.UserOverride("u1", "x"); ok {
		t.Error("override остался после Clear")
	}

	removed, err = repo.Clear(ctx, "u1", "x")
	if err != nil || removed {
		t.Errorf("повторный Clear() = %v, %v", removed, err)
	}
}

func TestRoleDefaults_FailedSaveKeepsOldSet(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	repo := NewRoleDefaultRepository(store)

	if err := repo.Replace(ctx, "sales", model.PermissionSet{"orders.create": true}); err != nil {
		t.Fatal(err)
	}

	store.arm()
	err := repo.Replace(ctx, "sales", model.PermissionSet{"orders.create": false})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("Replace() = %v, хотели errStoreDown", err)
	}

	if allowed, _ := repo.RoleDefault("sales", "orders.create"); !allowed {
		t.Error("после неудачного сохранения виден новый набор")
	}
}

func TestRoleDefaults_ReplaceIsAtomicForReaders(t *testing.T) {
	ctx := context.Background()
	repo := NewRoleDefaultRepository(nil)

	perms := []string{"a", "b", "c", "d", "e", "f"}
	set := func(v bool) model.PermissionSet {
		s := make(model.PermissionSet, len(perms))
		for _, p := range perms {
			s[p] = v
		}
		return s
	}
	_ = repo.Replace(ctx, "sales", set(false))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, _ := repo.Get("sales")
				first := got[perms[0]]
				for _, p := range perms[1:] {
					if got[p] != first {
						t.Errorf("читатель увидел частично применённый набор: %v", got)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if err := repo.Replace(ctx, "sales", set(i%2 == 0)); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestAccessRequests_CreateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessRequestRepository(nil)
	base := model.AccessRequest{ID: "r1", UserID: "u1", PermissionID: "x", Status: model.StatusPending}

	if err := repo.Create(ctx, base); err != nil {
		t.Fatal(err)
	}

	dupID := base
	dupID.PermissionID = "y"
	if err := repo.Create(ctx, dupID); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат ID: %v, хотели ErrConflict", err)
	}

	dupPending := base
	dupPending.ID = "r2"
	if err := repo.Create(ctx, dupPending); !errors.Is(err, ErrConflict) {
		t.Errorf("второй pending на то же право: %v, хотели ErrConflict", err)
	}

	other := base
	other.ID = "r3"
	other.UserID = "u2"
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("запрос другого пользователя: %v", err)
	}
}

func TestAccessRequests_TransitionAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessRequestRepository(nil)
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		_ = repo.Create(ctx, model.AccessRequest{
			ID: id, UserID: "u1", PermissionID: id, Status: model.StatusPending,
			RequestedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := repo.Transition(ctx, "r2", func(r *model.AccessRequest) error {
		r.Status = model.StatusApproved
		return nil
	})
	if err != nil || got.Status != model.StatusApproved {
		t.Fatalf("Transition() = %+v, %v", got, err)
	}

	errBoom := errors.New("boom")
	if _, err := repo.Transition(ctx, "r1", func(r *model.AccessRequest) error {
		r.Status = model.StatusRejected
		return errBoom
	}); !errors.Is(err, errBoom) {
		t.Fatalf("ошибка fn не возвращена: %v", err)
	}
	if r1, _ := repo.Get("r1"); r1.Status != model.StatusPending {
		t.Error("неудачный Transition изменил запрос")
	}

	if _, err := repo.Transition(ctx, "nope", func(*model.AccessRequest) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный ID: %v, хотели ErrNotFound", err)
	}

	pending := repo.List(func(r model.AccessRequest) bool { return r.Status == model.StatusPending })
	if len(pending) != 2 || pending[0].ID != "r3" || pending[1].ID != "r1" {
		t.Errorf("List(pending) = %v, хотели [r3 r1]", ids(pending))
	}
}

func TestExpirations_TakeOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewExpiryRepository(NewMemoryStore())
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_ = repo.Put(ctx, model.PendingExpiry{RequestID: "r1", UserID: "u1", PermissionID: "x", ValidUntil: t0})
	_ = repo.Put(ctx, model.PendingExpiry{RequestID: "r2", UserID: "u1", PermissionID: "x", ValidUntil: t0.Add(time.Hour)})

	if due := repo.Due(t0); len(due) != 1 || due[0].RequestID != "r1" {
		t.Errorf("Due(t0) = %v", due)
	}
	if got := repo.ForPermission("u1", "x"); len(got) != 2 {
		t.Errorf("ForPermission() = %d записей, хотели 2", len(got))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Take(ctx, "r1")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Errorf("Take() успешен %d раз, хотели 1", taken)
	}
	if len(repo.List()) != 1 {
		t.Errorf("List() = %d записей, хотели 1", len(repo.List()))
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	if _, err := repo.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() неизвестного = %v", err)
	}
	_ = repo.Upsert(ctx, model.User{ID: "u2", Name: "B", Role: "sales"})
	_ = repo.Upsert(ctx, model.User{ID: "u1", Name: "A", Role: "viewer"})

	list, _ := repo.List(ctx)
	if len(list) != 2 || list[0].ID != "u1" {
		t.Errorf("List() = %v", list)
	}
	if err := repo.Upsert(ctx, model.User{}); err == nil {
		t.Error("Upsert() без ID должен вернуть ошибку")
	}
}

func ids(reqs []model.AccessRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
