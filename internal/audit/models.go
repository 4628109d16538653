package audit

import (
	"slices"
	"time"

	"nexops/pkg/domain"
)

// Entry is one immutable ledger row. Seq, PrevHash and Hash are assigned
// when the entry is appended; callers fill the rest.
type Entry struct {
	ID                 domain.AuditEntryID  `json:"id"`
	Seq                int64                `json:"seq"`
	TableName          string               `json:"table_name"`
	RecordID           string               `json:"record_id"`
	RecordLabel        *string              `json:"record_label,omitempty"`
	FieldChanged       string               `json:"field_changed"`
	OldValue           *string              `json:"old_value,omitempty"`
	NewValue           *string              `json:"new_value,omitempty"`
	ChangedByUserID    *string              `json:"changed_by_user_id,omitempty"`
	ChangedByName      *string              `json:"changed_by_name,omitempty"`
	RoleAtTimeOfChange *string              `json:"role_at_time_of_change,omitempty"`
	TriggerSource      domain.TriggerSource `json:"trigger_source"`
	TriggerDetail      *string              `json:"trigger_detail,omitempty"`
	ChangedAt          time.Time            `json:"changed_at"`
	PrevHash           string               `json:"prev_hash"`
	Hash               string               `json:"hash"`
}

// Clone returns e with its optional fields copied, so the copy shares no
// memory with a stored ledger row.
func (e Entry) Clone() Entry {
	out := e
	for _, p := range []**string{
		&out.RecordLabel,
		&out.OldValue,
		&out.NewValue,
		&out.ChangedByUserID,
		&out.ChangedByName,
		&out.RoleAtTimeOfChange,
		&out.TriggerDetail,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return out
}

// Scope selects an audit view. An empty RecordID selects the global window.
type Scope struct {
	RecordID string
}

// IsGlobal reports whether the scope reads the global window.
func (s Scope) IsGlobal() bool { return s.RecordID == "" }

// Filter narrows an already-fetched result set. Zero fields match everything.
type Filter struct {
	TriggerSource domain.TriggerSource
	TableName     string
}

// Apply returns the entries matching f, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.TriggerSource != "" && e.TriggerSource != f.TriggerSource {
			continue
		}
		if f.TableName != "" && e.TableName != f.TableName {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Tables returns the distinct table names of entries, sorted.
func Tables(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0)
	for _, e := range entries {
		if _, ok := seen[e.TableName]; ok {
			continue
		}
		seen[e.TableName] = struct{}{}
		out = append(out, e.TableName)
	}
	slices.Sort(out)
	return out
}
