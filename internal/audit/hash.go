package audit

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// ErrChainBroken is returned when a ledger entry does not match its hash or
// does not link to its predecessor.
var ErrChainBroken = errors.New("audit chain broken")

// entryDomainKey keys the BLAKE3 hash so ledger hashes can never collide with
// hashes computed for any other purpose. ASCII "nexops.audit.entry", zero-padded.
var entryDomainKey = [32]byte{
	'n', 'e', 'x', 'o', 'p', 's', '.', 'a', 'u', 'd', 'i', 't', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// canonicalEntry fixes field order and encodings for hashing. Seq and Hash
// are excluded: Seq is storage placement, Hash is the output.
type canonicalEntry struct {
	ID                 string  `json:"id"`
	TableName          string  `json:"table_name"`
	RecordID           string  `json:"record_id"`
	RecordLabel        *string `json:"record_label"`
	FieldChanged       string  `json:"field_changed"`
	OldValue           *string `json:"old_value"`
	NewValue           *string `json:"new_value"`
	ChangedByUserID    *string `json:"changed_by_user_id"`
	ChangedByName      *string `json:"changed_by_name"`
	RoleAtTimeOfChange *string `json:"role_at_time_of_change"`
	TriggerSource      string  `json:"trigger_source"`
	TriggerDetail      *string `json:"trigger_detail"`
	ChangedAt          string  `json:"changed_at"`
	PrevHash           string  `json:"prev_hash"`
}

// Seal links e to prevHash and stamps its hash.
func Seal(e Entry, prevHash string) Entry {
	e.PrevHash = prevHash
	e.Hash = computeHash(e)
	return e
}

func computeHash(e Entry) string {
	payload, err := json.Marshal(canonicalEntry{
		ID:                 e.ID.String(),
		TableName:          e.TableName,
		RecordID:           e.RecordID,
		RecordLabel:        e.RecordLabel,
		FieldChanged:       e.FieldChanged,
		OldValue:           e.OldValue,
		NewValue:           e.NewValue,
		ChangedByUserID:    e.ChangedByUserID,
		ChangedByName:      e.ChangedByName,
		RoleAtTimeOfChange: e.RoleAtTimeOfChange,
		TriggerSource:      string(e.TriggerSource),
		TriggerDetail:      e.TriggerDetail,
		ChangedAt:          e.ChangedAt.UTC().Format(time.RFC3339Nano),
		PrevHash:           e.PrevHash,
	})
	if err != nil {
		panic("audit: canonical entry encoding failed: " + err.Error())
	}
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Verify walks chain in append order and checks every hash and link. The
// first entry's PrevHash is trusted so a suffix of the ledger can be checked.
func Verify(chain []Entry) error {
	for i, e := range chain {
		if computeHash(e) != e.Hash {
			return fmt.Errorf("entry %d (%s) hash mismatch: %w", i, e.ID, ErrChainBroken)
		}
		if i > 0 && e.PrevHash != chain[i-1].Hash {
			return fmt.Errorf("entry %d (%s) does not link to its predecessor: %w", i, e.ID, ErrChainBroken)
		}
	}
	return nil
}
