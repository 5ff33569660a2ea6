package models

import "time"

// CascadeTaskKind names a cascade that can be replayed
type CascadeTaskKind string

const (
	CascadeRevokeFolder CascadeTaskKind = "revoke_folder"
	CascadePurgeFolder  CascadeTaskKind = "purge_folder"
	CascadePurgeFile    CascadeTaskKind = "purge_file"
)

// CascadeTask records a cascade that finished its primary transition but
// left cleanup behind. The sweeper replays it until it succeeds.
type CascadeTask struct {
	ID          string          `json:"id" db:"id"`
	Kind        CascadeTaskKind `json:"kind" db:"kind"`
	OwnerID     string          `json:"owner_id" db:"owner_id"`
	NodeID      string          `json:"node_id" db:"node_id"`
	Recipient   string          `json:"recipient,omitempty" db:"recipient"` // Empty for purge tasks
	Attempts    int             `json:"attempts" db:"attempts"`
	LastError   string          `json:"last_error" db:"last_error"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CascadeReport is returned by revoke, soft-delete, restore and purge.
// Complete is false when cleanup failures were journaled for retry.
type CascadeReport struct {
	Operation           string   `json:"operation"`
	NodeID              string   `json:"node_id"`
	Applied             bool     `json:"applied"` // false = idempotent no-op
	Complete            bool     `json:"complete"`
	Folders             int      `json:"folders"`
	Files               int      `json:"files"`
	FileGrantsRemoved   int64    `json:"file_grants_removed,omitempty"`
	FolderGrantsRemoved int64    `json:"folder_grants_removed,omitempty"`
	BytesFreed          int64    `json:"bytes_freed,omitempty"`
	ContentUnavailable  []string `json:"content_unavailable,omitempty"` // Restored file ids with no blob
	FailedItems         []string `json:"failed_items,omitempty"`
}
