package models

import "time"

// UsageInterval is a billing span during which a file's bytes were stored.
// Metering reads these; the store only opens and closes them.
type UsageInterval struct {
	ID            string     `json:"id" db:"id"`
	FileID        string     `json:"file_id" db:"file_id"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	Bytes         int64      `json:"bytes" db:"bytes"`
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"` // NULL = still open
}
