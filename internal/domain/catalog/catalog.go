// Пакет catalog — статический каталог прав, сгруппированных по
// функциональным разделам приложения (продажи, склад, cari-счета, ...).
// Каталог неизменяем и собирается один раз при старте процесса.
package catalog

import (
	"sort"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// Функциональные группы.
const (
	GroupSales         = "sales"
	GroupOrders        = "orders"
	GroupInventory     = "inventory"
	GroupCustomers     = "customers"
	GroupPayments      = "payments"
	GroupDeliveries    = "deliveries"
	GroupApprovals     = "approvals"
	GroupNotifications = "notifications"
	GroupReports       = "reports"
	GroupUsers         = "users"
	GroupSettings      = "settings"
)

// Права, на которые ссылается код модуля.
const (
	PermApprovalsView          = "approvals.view"
	PermApprovalsManage        = "approvals.manage"
	PermUsersManagePermissions = "users.manage_permissions"
)

// permissions — полный список прав в порядке отображения.
var permissions = []model.Permission{
	{ID: "sales.view", Label: "Просмотр продаж", Group: GroupSales},
	{ID: "sales.create", Label: "Создание продажи", Group: GroupSales},
	{ID: "sales.edit", Label: "Редактирование продажи", Group: GroupSales},
	{ID: "sales.delete", Label: "Удаление продажи", Group: GroupSales},
	{ID: "sales.discount", Label: "Скидка в продаже", Group: GroupSales},

	{ID: "orders.view", Label: "Просмотр заказов", Group: GroupOrders},
	{ID: "orders.create", Label: "Создание заказа", Group: GroupOrders},
	{ID: "orders.edit", Label: "Редактирование заказа", Group: GroupOrders},
	{ID: "orders.cancel", Label: "Отмена заказа", Group: GroupOrders},

	{ID: "inventory.view", Label: "Просмотр склада", Group: GroupInventory},
	{ID: "inventory.edit", Label: "Редактирование товаров", Group: GroupInventory},
	{ID: "inventory.movements", Label: "Складские движения", Group: GroupInventory},
	{ID: "inventory.barcodes", Label: "Управление штрихкодами", Group: GroupInventory},

	{ID: "customers.view", Label: "Просмотр cari-счетов", Group: GroupCustomers},
	{ID: "customers.edit", Label: "Редактирование cari-счетов", Group: GroupCustomers},
	{ID: "customers.statement", Label: "Выписка по cari-счёту", Group: GroupCustomers},

	{ID: "payments.view", Label: "Просмотр платежей", Group: GroupPayments},
	{ID: "payments.create", Label: "Приём платежа", Group: GroupPayments},
	{ID: "payments.refund", Label: "Возврат платежа", Group: GroupPayments},

	{ID: "deliveries.view", Label: "Просмотр доставок", Group: GroupDeliveries},
	{ID: "deliveries.manage", Label: "Управление доставками", Group: GroupDeliveries},

	{ID: PermApprovalsView, Label: "Просмотр заявок на доступ", Group: GroupApprovals},
	{ID: PermApprovalsManage, Label: "Согласование заявок на доступ", Group: GroupApprovals},

	{ID: "notifications.view", Label: "Просмотр уведомлений", Group: GroupNotifications},
	{ID: "notifications.send", Label: "Рассылка уведомлений", Group: GroupNotifications},

	{ID: "reports.view", Label: "Просмотр отчётов", Group: GroupReports},
	{ID: "reports.export", Label: "Экспорт отчётов", Group: GroupReports},

	{ID: "users.view", Label: "Просмотр пользователей", Group: GroupUsers},
	{ID: "users.manage", Label: "Управление пользователями", Group: GroupUsers},
	{ID: PermUsersManagePermissions, Label: "Управление правами пользователей", Group: GroupUsers},

	{ID: "settings.view", Label: "Просмотр настроек", Group: GroupSettings},
	{ID: "settings.edit", Label: "Изменение настроек", Group: GroupSettings},
}

// Catalog — индекс прав по идентификатору.
type Catalog struct {
	ordered []model.Permission
	byID    map[string]model.Permission
}

// Default возвращает каталог прав приложения.
func Default() *Catalog {
	return New(permissions)
}

// New строит каталог из списка прав. Дубликаты ID игнорируются
// (сохраняется первое вхождение).
func New(perms []model.Permission) *Catalog {
	c := &Catalog{
		ordered: make([]model.Permission, 0, len(perms)),
		byID:    make(map[string]model.Permission, len(perms)),
	}
	for _, p := range perms {
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		c.byID[p.ID] = p
		c.ordered = append(c.ordered, p)
	}
	return c
}

// Known проверяет, есть ли право в каталоге.
func (c *Catalog) Known(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Lookup возвращает право по ID.
func (c *Catalog) Lookup(id string) (model.Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All возвращает все права в порядке объявления.
func (c *Catalog) All() []model.Permission {
	out := make([]model.Permission, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// IDs возвращает идентификаторы всех прав в порядке объявления.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ordered))
	for i, p := range c.ordered {
		out[i] = p.ID
	}
	return out
}

// Groups возвращает права, сгруппированные по функциональным разделам.
func (c *Catalog) Groups() map[string][]model.Permission {
	out := make(map[string][]model.Permission)
	for _, p := range c.ordered {
		out[p.Group] = append(out[p.Group], p)
	}
	return out
}

// GroupNames возвращает отсортированный список групп.
func (c *Catalog) GroupNames() []string {
	groups := c.Groups()
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// Template возвращает набор, в котором каждое право каталога имеет значение allowed.
// Используется как шаблон all-deny для ролей без сохранённых defaults
// и как all-allow для admin.
func (c *Catalog) Template(allowed bool) model.PermissionSet {
	out := make(model.PermissionSet, len(c.ordered))
	for _, p := range c.ordered {
		out[p.ID] = allowed
	}
	return out
}
