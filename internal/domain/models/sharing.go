package models

// SharedItem is one root-level entry of a recipient's "shared with me" view.
// Exactly one of Folder or File is set, matching Kind.
type SharedItem struct {
	Kind       NodeKind    `json:"kind"`
	GrantID    string      `json:"grant_id"`
	Permission Permission  `json:"permission"`
	Owner      UserSummary `json:"owner"`
	Folder     *Folder     `json:"folder,omitempty"`
	File       *File       `json:"file,omitempty"`
	WrappedKey string      `json:"wrapped_key,omitempty"` // Recipient's key, file grants only
}

// FolderEntry is a file as seen by a requester inside a folder listing.
// IsLocked is true when the requester can see the file but holds no key for it.
type FolderEntry struct {
	File
	IsLocked bool `json:"is_locked"`
}

// FolderContents is the result of listing one folder for a requester
type FolderContents struct {
	Folder  *Folder       `json:"folder"`
	Folders []Folder      `json:"folders"`
	Files   []FolderEntry `json:"files"`
}

// DownloadEntry is one decryptable file of a subtree download, with its path
// relative to the archive root.
type DownloadEntry struct {
	File        File   `json:"file"`
	ZipPath     string `json:"zip_path"`
	WrappedKey  string `json:"wrapped_key"`
	DownloadURL string `json:"download_url,omitempty"`
}

// PendingSync lists files a recipient can see but cannot yet decrypt. The
// client wraps each file key under PublicKey and pushes it back through a
// bulk share.
type PendingSync struct {
	User  UserSummary `json:"user"`
	Files []File      `json:"files"` // Metadata only, never keys
}

// AccessDecision explains how a user reaches a folder.
type AccessDecision struct {
	Allowed bool `json:"allowed"`
	IsOwner bool `json:"is_owner"`
	// ViaFolderID is the folder whose grant matched (the node itself or an ancestor)
	ViaFolderID string     `json:"via_folder_id,omitempty"`
	Permission  Permission `json:"permission,omitempty"`
}
