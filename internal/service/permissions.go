// permissions.go — сервис прав: разрешение, defaults ролей, overrides пользователей.
//
// Чтения (Resolve, Explain, EffectivePermissions) идут по снимкам таблиц
// без блокировок. Записи сохраняются через репозитории и сбрасывают кэш
// эффективных прав.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/rbac"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
)

// tables — rbac.Tables поверх репозиториев overrides и defaults.
type tables struct {
	overrides repository.UserOverrideRepository
	defaults  repository.RoleDefaultRepository
}

func (t tables) UserOverride(userID, permissionID string) (bool, bool) {
	return t.overrides.UserOverride(userID, permissionID)
}

func (t tables) RoleDefault(role, permissionID string) (bool, bool) {
	return t.defaults.RoleDefault(role, permissionID)
}

// PermissionService — разрешение прав и управление таблицами прав.
type PermissionService struct {
	catalog   *catalog.Catalog
	resolver  *rbac.Resolver
	users     repository.UserRepository
	defaults  repository.RoleDefaultRepository
	overrides repository.UserOverrideRepository
	cache     *PermissionCache
	expiry    *ExpiryService
	logger    *slog.Logger
}

// NewPermissionService создаёт сервис прав. cache может быть nil.
func NewPermissionService(
	cat *catalog.Catalog,
	users repository.UserRepository,
	defaults repository.RoleDefaultRepository,
	overrides repository.UserOverrideRepository,
	cache *PermissionCache,
	logger *slog.Logger,
) *PermissionService {
	return &PermissionService{
		catalog:   cat,
		resolver:  rbac.NewResolver(cat),
		users:     users,
		defaults:  defaults,
		overrides: overrides,
		cache:     cache,
		logger:    logger.With(slog.String("component", "permission_service")),
	}
}

// SetExpiryService подключает сервис отзывов: прямая запись override
// отменяет запланированные отзывы того же права.
func (s *PermissionService) SetExpiryService(e *ExpiryService) {
	s.expiry = e
}

// Catalog возвращает каталог прав.
func (s *PermissionService) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *PermissionService) tables() rbac.Tables {
	return tables{overrides: s.overrides, defaults: s.defaults}
}

// Resolve отвечает, может ли пользователь выполнить действие.
// Неизвестный пользователь получает запрет.
func (s *PermissionService) Resolve(ctx context.Context, userID, permissionID string) bool {
	return s.Explain(ctx, userID, permissionID).Allowed
}

// Explain — Resolve с источником решения.
func (s *PermissionService) Explain(ctx context.Context, userID, permissionID string) rbac.Decision {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		permissionChecksTotal.WithLabelValues(resultLabel(false)).Inc()
		return rbac.Decision{Allowed: false, Source: rbac.SourceDefaultDeny}
	}
	d := s.resolver.Explain(user, permissionID, s.tables())
	permissionChecksTotal.WithLabelValues(resultLabel(d.Allowed)).Inc()
	return d
}

// ResolveUser разрешает право для уже загруженного пользователя.
func (s *PermissionService) ResolveUser(user model.User, permissionID string) bool {
	allowed := s.resolver.Resolve(user, permissionID, s.tables())
	permissionChecksTotal.WithLabelValues(resultLabel(allowed)).Inc()
	return allowed
}

// EffectivePermissions возвращает решение по каждому праву каталога.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID string) (model.PermissionSet, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, mapDomainError(err)
	}

	var gen uint64
	if s.cache != nil {
		set, g, ok := s.cache.Get(userID)
		if ok {
			return set, nil
		}
		gen = g
	}

	set := s.resolver.Effective(user, s.tables())
	if s.cache != nil {
		s.cache.Set(userID, set, gen)
	}
	return set, nil
}

// GetDefaults возвращает набор defaults роли. Для роли без сохранённого
// набора — шаблон «всё запрещено», для admin — «всё разрешено».
func (s *PermissionService) GetDefaults(role string) (model.PermissionSet, error) {
	if !rbac.IsValidRole(role) {
		return nil, fmt.Errorf("%w: роль %q", ErrNotFound, role)
	}
	if rbac.IsAdmin(role) {
		return s.catalog.Template(true), nil
	}
	if set, ok := s.defaults.Get(role); ok {
		return set, nil
	}
	return s.catalog.Template(false), nil
}

// SetDefaults атомарно заменяет набор defaults роли. Права каталога,
// не упомянутые в entries, запрещены.
func (s *PermissionService) SetDefaults(ctx context.Context, role string, entries []model.PermissionEntry) (model.PermissionSet, error) {
	if !rbac.IsValidRole(role) {
		return nil, fmt.Errorf("%w: роль %q", ErrNotFound, role)
	}
	if rbac.IsAdmin(role) {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrForbiddenRole)
	}

	set := s.catalog.Template(false)
	for _, e := range entries {
		if !s.catalog.Known(e.PermissionID) {
			return nil, fmt.Errorf("%w: неизвестное право %q", ErrValidation, e.PermissionID)
		}
		set[e.PermissionID] = e.Allowed
	}

	if err := s.defaults.Replace(ctx, role, set); err != nil {
		return nil, fmt.Errorf("ошибка сохранения defaults роли %s: %w", role, err)
	}
	if s.cache != nil {
		s.cache.Purge()
	}

	s.logger.Info("Defaults роли обновлены",
		slog.String("role", role),
		slog.Int("entries", len(entries)),
	)
	return set.Clone(), nil
}

// GetOverrides возвращает overrides пользователя.
func (s *PermissionService) GetOverrides(ctx context.Context, userID string) (model.PermissionSet, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, mapDomainError(err)
	}
	return s.overrides.Get(userID), nil
}

// SetOverrides сливает entries в overrides пользователя (новое побеждает).
// Права вне каталога принимаются, но на разрешение не влияют.
func (s *PermissionService) SetOverrides(ctx context.Context, userID string, entries []model.PermissionEntry) (model.PermissionSet, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, mapDomainError(err)
	}
	for _, e := range entries {
		if e.PermissionID == "" {
			return nil, fmt.Errorf("%w: пустой идентификатор права", ErrValidation)
		}
	}

	if _, err := s.writeOverrides(ctx, userID, entries); err != nil {
		return nil, err
	}

	s.logger.Info("Overrides пользователя обновлены",
		slog.String("user_id", userID),
		slog.Int("entries", len(entries)),
	)
	return s.overrides.Get(userID), nil
}

// ClearOverride удаляет override, разрешение возвращается к defaults роли.
// Возвращает false, если override не было.
func (s *PermissionService) ClearOverride(ctx context.Context, userID, permissionID string) (bool, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return false, mapDomainError(err)
	}
	taken, err := s.supersede(ctx, userID, permissionID)
	if err != nil {
		return false, err
	}

	removed, err := s.overrides.Clear(ctx, userID, permissionID)
	if err != nil {
		s.restoreExpirations(ctx, taken)
		return false, fmt.Errorf("ошибка удаления override: %w", err)
	}
	s.invalidate(userID)

	if removed {
		s.logger.Info("Override пользователя удалён",
			slog.String("user_id", userID),
			slog.String("permission_id", permissionID),
		)
	}
	return removed, nil
}

// ApplyRoleTemplate записывает defaults роли как overrides пользователя.
func (s *PermissionService) ApplyRoleTemplate(ctx context.Context, userID, role string) (model.PermissionSet, error) {
	if rbac.IsAdmin(role) {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrForbiddenRole)
	}
	defaults, err := s.GetDefaults(role)
	if err != nil {
		return nil, err
	}
	return s.SetOverrides(ctx, userID, defaults.Entries())
}

// WriteOverride записывает overrides без отмены запланированных отзывов.
// Используется жизненным циклом запросов и отзывом временного доступа.
func (s *PermissionService) WriteOverride(ctx context.Context, userID string, entries ...model.PermissionEntry) error {
	if err := s.overrides.Merge(ctx, userID, entries); err != nil {
		return fmt.Errorf("ошибка сохранения overrides пользователя %s: %w", userID, err)
	}
	s.invalidate(userID)
	return nil
}

// overrideOf возвращает текущий override пользователя.
func (s *PermissionService) overrideOf(userID, permissionID string) (bool, bool) {
	return s.overrides.UserOverride(userID, permissionID)
}

// writeOverrides снимает запланированные отзывы по правам entries
// и сливает entries в overrides. Если слияние не удалось, снятые отзывы
// восстанавливаются. Возвращённый overrideUndo откатывает запись, когда
// не удалась следующая за ней операция.
func (s *PermissionService) writeOverrides(ctx context.Context, userID string, entries []model.PermissionEntry) (*overrideUndo, error) {
	undo := &overrideUndo{s: s, userID: userID}
	perms := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.PermissionID] {
			continue
		}
		seen[e.PermissionID] = true
		perms = append(perms, e.PermissionID)
		allowed, existed := s.overrideOf(userID, e.PermissionID)
		undo.prev = append(undo.prev, previousOverride{permissionID: e.PermissionID, allowed: allowed, existed: existed})
	}

	taken, err := s.supersede(ctx, userID, perms...)
	if err != nil {
		return nil, err
	}
	undo.taken = taken

	if err := s.WriteOverride(ctx, userID, entries...); err != nil {
		s.restoreExpirations(ctx, taken)
		return nil, err
	}
	return undo, nil
}

func (s *PermissionService) supersede(ctx context.Context, userID string, perms ...string) ([]model.PendingExpiry, error) {
	if s.expiry == nil {
		return nil, nil
	}
	taken, err := s.expiry.Supersede(ctx, userID, perms...)
	if err != nil {
		return nil, fmt.Errorf("ошибка отмены запланированных отзывов: %w", err)
	}
	return taken, nil
}

func (s *PermissionService) restoreExpirations(ctx context.Context, taken []model.PendingExpiry) {
	if s.expiry != nil && len(taken) > 0 {
		s.expiry.Restore(ctx, taken)
	}
}

// previousOverride — значение override до записи.
type previousOverride struct {
	permissionID string
	allowed      bool
	existed      bool
}

// overrideUndo — откат записи writeOverrides: прежние значения overrides
// и снятые запланированные отзывы.
type overrideUndo struct {
	s      *PermissionService
	userID string
	prev   []previousOverride
	taken  []model.PendingExpiry
}

// rollback возвращает overrides и отзывы к состоянию до записи.
// Ошибки только логируются: откат выполняется уже после ошибки операции.
func (u *overrideUndo) rollback(ctx context.Context) {
	if u == nil {
		return
	}
	s := u.s

	var restore []model.PermissionEntry
	for _, p := range u.prev {
		if p.existed {
			restore = append(restore, model.PermissionEntry{PermissionID: p.permissionID, Allowed: p.allowed})
			continue
		}
		if _, err := s.overrides.Clear(ctx, u.userID, p.permissionID); err != nil {
			s.logger.Error("Не удалось откатить override",
				slog.String("user_id", u.userID),
				slog.String("permission_id", p.permissionID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(restore) > 0 {
		if err := s.overrides.Merge(ctx, u.userID, restore); err != nil {
			s.logger.Error("Не удалось восстановить прежние overrides",
				slog.String("user_id", u.userID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.invalidate(u.userID)
	s.restoreExpirations(ctx, u.taken)

	s.logger.Warn("Запись overrides откачена",
		slog.String("user_id", u.userID),
		slog.Int("entries", len(u.prev)),
		slog.Int("restored_expirations", len(u.taken)),
	)
}

func (s *PermissionService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
