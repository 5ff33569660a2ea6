package handler

import "net/http"

// Handlers bundles every HTTP handler of the API
type Handlers struct {
	Folders *FolderHandler
	Files   *FileHandler
	Shares  *ShareHandler
	Trash   *TrashHandler
	Users   *UserHandler
	Blobs   *BlobHandler
}

// Register mounts all routes on mux
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("GET /blobs/{handle...}", h.Blobs.Download)

	// Account
	mux.HandleFunc("GET /api/me", h.Users.GetMe)
	mux.HandleFunc("PUT /api/me/public-key", h.Users.SetPublicKey)
	mux.HandleFunc("GET /api/users/lookup", h.Users.LookupUser)

	// Folder tree
	mux.HandleFunc("POST /api/folders", h.Folders.CreateFolder)
	mux.HandleFunc("GET /api/folders/root", h.Folders.ListRoot)
	mux.HandleFunc("GET /api/folders/tree", h.Folders.GetTree)
	mux.HandleFunc("GET /api/folders/{id}", h.Folders.GetFolder)
	mux.HandleFunc("PATCH /api/folders/{id}", h.Folders.UpdateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", h.Trash.DeleteFolder)
	mux.HandleFunc("GET /api/folders/{id}/contents", h.Folders.ListContents)
	mux.HandleFunc("GET /api/folders/{id}/download-manifest", h.Folders.DownloadManifest)
	mux.HandleFunc("GET /api/folders/{id}/archive", h.Folders.DownloadArchive)

	// Files
	mux.HandleFunc("POST /api/files", h.Files.UploadFile)
	mux.HandleFunc("GET /api/files/{id}", h.Files.GetFile)
	mux.HandleFunc("PATCH /api/files/{id}", h.Files.UpdateFile)
	mux.HandleFunc("DELETE /api/files/{id}", h.Trash.DeleteFile)
	mux.HandleFunc("GET /api/files/{id}/download", h.Files.GetDownload)

	// Sharing
	mux.HandleFunc("POST /api/shares/files", h.Shares.ShareFile)
	mux.HandleFunc("POST /api/shares/bulk", h.Shares.ShareBulk)
	mux.HandleFunc("PATCH /api/grants/{kind}/{id}", h.Shares.UpdatePermission)
	mux.HandleFunc("DELETE /api/grants/{kind}/{id}", h.Shares.Revoke)
	mux.HandleFunc("GET /api/shared-with-me", h.Shares.ListSharedWithMe)
	mux.HandleFunc("GET /api/sync/{kind}/{id}", h.Shares.ScanPendingSync)

	// Trash
	mux.HandleFunc("GET /api/trash", h.Trash.ListTrash)
	mux.HandleFunc("POST /api/trash/{kind}/{id}/restore", h.Trash.Restore)
	mux.HandleFunc("DELETE /api/trash/{kind}/{id}", h.Trash.Purge)
}
