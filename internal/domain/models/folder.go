package models

import (
	"time"
)

type Folder struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	ParentID  *string    `json:"parent_id" db:"parent_id"` // NULL = root level
	Name      string     `json:"name" db:"name"`
	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether the folder is present and not in trash.
func (f *Folder) IsLive() bool {
	return f != nil && !f.IsDeleted
}

// NodeKind tags which half of the tree an operation targets.
type NodeKind string

const (
	NodeKindFile   NodeKind = "file"
	NodeKindFolder NodeKind = "folder"
)

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	return k == NodeKindFile || k == NodeKindFolder
}

// FolderTreeNode is a folder with its live children, used for the owner tree view.
type FolderTreeNode struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	ParentID  *string           `json:"parent_id"`
	CreatedAt time.Time         `json:"created_at"`
	Folders   []*FolderTreeNode `json:"folders"` // Pointers for proper nesting
	Files     []FileTreeNode    `json:"files"`
}

// FileTreeNode is file metadata inside a tree (no keys)
type FileTreeNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FolderID  *string   `json:"folder_id"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TreeNode is the root of an owner's tree
type TreeNode struct {
	Folders []*FolderTreeNode `json:"folders"`
	Files   []FileTreeNode    `json:"files"`
}
