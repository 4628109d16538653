// Package roles maps each operator role to what it may see. It is read-only
// configuration: the engine consults it to pick severity allowlists and
// audit views, and never enforces access with it.
package roles

import (
	"slices"

	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
)

// Role is an operator persona. Values index the config table.
type Role int

const (
	WarehouseManager Role = iota
	CEO
	Finance
	Driver

	roleCount
)

var roleNames = [roleCount]string{
	WarehouseManager: "warehouse_manager",
	CEO:              "ceo",
	Finance:          "finance",
	Driver:           "driver",
}

// Parse maps a wire name to a Role.
func Parse(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
}

func (r Role) Valid() bool { return r >= 0 && r < roleCount }

func (r Role) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AuditAccess selects which audit view a role gets.
type AuditAccess string

const (
	AuditScoped   AuditAccess = "scoped"
	AuditGlobal   AuditAccess = "global"
	AuditReadOnly AuditAccess = "read_only"
)

// AllowsGlobal reports whether the role may read the global audit window.
func (a AuditAccess) AllowsGlobal() bool {
	return a == AuditGlobal || a == AuditReadOnly
}

// Module is a UI surface a role may see.
type Module string

const (
	ModuleActionQueue          Module = "action_queue"
	ModuleActionQueueCondensed Module = "action_queue_condensed"
	ModuleDrillDownDrawer      Module = "drill_down_drawer"
	ModuleAuditTraceScoped     Module = "audit_trace_scoped"
	ModuleAuditTraceGlobal     Module = "audit_trace_global"
	ModuleCommandPalette       Module = "command_palette"
	ModuleSyncStatus           Module = "sync_status"
	ModuleKPIDashboard         Module = "kpi_dashboard"
	ModuleInvoices             Module = "invoices"
	ModuleActiveRoute          Module = "active_route"
	ModuleDeliveryStatus       Module = "delivery_status"
)

// Config is everything the engine derives from a role.
type Config struct {
	Role              Role              `json:"role"`
	Label             string            `json:"label"`
	Description       string            `json:"description"`
	VisibleModules    []Module          `json:"visible_modules"`
	SeverityAllowlist []domain.Severity `json:"severity_allowlist"`
	AuditAccess       AuditAccess       `json:"audit_access"`
}

var configs = [...]Config{
	WarehouseManager: {
		Role:        WarehouseManager,
		Label:       "Warehouse Manager",
		Description: "Full operational control. All anomalies. Live driver detail.",
		VisibleModules: []Module{
			ModuleActionQueue, ModuleDrillDownDrawer, ModuleAuditTraceScoped,
			ModuleCommandPalette, ModuleSyncStatus,
		},
		SeverityAllowlist: []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityWatch},
		AuditAccess:       AuditScoped,
	},
	CEO: {
		Role:        CEO,
		Label:       "CEO",
		Description: "Business performance view. KPIs, critical escalations, full audit visibility.",
		VisibleModules: []Module{
			ModuleKPIDashboard, ModuleActionQueueCondensed, ModuleAuditTraceGlobal, ModuleCommandPalette,
		},
		SeverityAllowlist: []domain.Severity{domain.SeverityCritical},
		AuditAccess:       AuditReadOnly,
	},
	Finance: {
		Role:        Finance,
		Label:       "Finance Lead",
		Description: "Invoice management and cost tracking.",
		VisibleModules: []Module{
			ModuleInvoices, ModuleKPIDashboard, ModuleAuditTraceGlobal, ModuleCommandPalette,
		},
		SeverityAllowlist: []domain.Severity{domain.SeverityCritical, domain.SeverityWarning},
		AuditAccess:       AuditGlobal,
	},
	Driver: {
		Role:              Driver,
		Label:             "Field Driver",
		Description:       "Active route and delivery status.",
		VisibleModules:    []Module{ModuleActiveRoute, ModuleDeliveryStatus},
		SeverityAllowlist: []domain.Severity{domain.SeverityCritical},
		AuditAccess:       AuditScoped,
	},
}

// The table must have exactly one entry per role; either line fails to
// compile when a role is added without a config or vice versa.
var (
	_ [len(configs) - int(roleCount)]struct{}
	_ [int(roleCount) - len(configs)]struct{}
)

// For returns the configuration of r.
func For(r Role) (Config, error) {
	if !r.Valid() {
		return Config{}, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	c := configs[r]
	c.VisibleModules = slices.Clone(c.VisibleModules)
	c.SeverityAllowlist = slices.Clone(c.SeverityAllowlist)
	return c, nil
}

// All lists every role in table order.
func All() []Role {
	out := make([]Role, 0, roleCount)
	for r := Role(0); r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}

// DemoRoles are the roles the toggle offers in the MVP build.
func DemoRoles() []Role {
	return []Role{WarehouseManager, CEO}
}

// ModuleVisible reports whether m is part of the role's surface.
func (c Config) ModuleVisible(m Module) bool {
	return slices.Contains(c.VisibleModules, m)
}

// Allows reports whether anomalies of sev reach this role.
func (c Config) Allows(sev domain.Severity) bool {
	return slices.Contains(c.SeverityAllowlist, sev)
}
