package handler

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"sealdrive/internal/auth"
	"sealdrive/internal/blob"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/middleware"
	"sealdrive/internal/repository/memory"
	authz "sealdrive/internal/service/auth"
	"sealdrive/internal/service/drive"
	"sealdrive/internal/utils"
)

const testSecret = "handler-test-secret"

type server struct {
	t        *testing.T
	handler  http.Handler
	verifier *auth.HMACVerifier
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewStore()
	signer := blob.NewSigner("blob-key", "http://sealdrive.test")
	blobs := blob.NewDiskStoreFs(afero.NewMemMapFs(), signer)
	authorizer := authz.NewGrantAuthorizer(store.Folders(), store.Files(), store.Grants())

	users := drive.NewUserService(store.Users(), 1<<20, logger)
	folders := drive.NewFolderService(store.Folders(), store.Files(), logger)
	files := drive.NewFileService(drive.FileServiceDeps{
		Folders:    store.Folders(),
		Files:      store.Files(),
		Grants:     store.Grants(),
		Users:      store.Users(),
		Usage:      store.Usage(),
		Blobs:      blobs,
		TxManager:  store.TxManager(),
		Authorizer: authorizer,
		PresignTTL: time.Minute,
		Logger:     logger,
	})
	shares := drive.NewShareService(drive.ShareServiceDeps{
		Folders:    store.Folders(),
		Files:      store.Files(),
		Grants:     store.Grants(),
		Users:      store.Users(),
		Blobs:      blobs,
		Authorizer: authorizer,
		PresignTTL: time.Minute,
		Logger:     logger,
	})
	trash := drive.NewTrashService(drive.TrashServiceDeps{
		Folders:   store.Folders(),
		Files:     store.Files(),
		Grants:    store.Grants(),
		Users:     store.Users(),
		Usage:     store.Usage(),
		Blobs:     blobs,
		TxManager: store.TxManager(),
		Journal:   store.Journal(),
		Logger:    logger,
	})

	handlers := &Handlers{
		Folders: NewFolderHandler(folders, shares, blobs, logger),
		Files:   NewFileHandler(files, logger),
		Shares: NewShareHandler(
			shares,
			drive.NewRevocationService(store.Folders(), store.Files(), store.Grants(), store.Journal(), logger),
			drive.NewSyncService(store.Folders(), store.Files(), store.Grants(), store.Users(), logger),
			logger,
		),
		Trash: NewTrashHandler(trash, logger),
		Users: NewUserHandler(users, logger),
		Blobs: NewBlobHandler(blobs, signer, logger),
	}

	mux := http.NewServeMux()
	handlers.Register(mux)

	verifier := auth.NewHMACVerifier(testSecret)
	var h http.Handler = mux
	h = middleware.Auth(verifier, users, logger)(h)
	h = middleware.Recovery(logger)(h)

	return &server{t: t, handler: h, verifier: verifier}
}

func (s *server) token(userID string) string {
	claims := &models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: userID + "@example.com",
		Name:  userID,
		Role:  "authenticated",
	}
	tok, err := s.verifier.Sign(claims)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(userID, method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, r)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(userID string, fields map[string]string, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("content", "blob.bin")
	require.NoError(s.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(userID))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuth(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + s.token("alice"), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	t.Run("health is public", func(t *testing.T) {
		rec := s.do("", http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestFolderRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "Reports"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Folder](t, rec)

	t.Run("duplicate returns existing with 409", func(t *testing.T) {
		rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "Reports"})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, created.ID, decode[models.Folder](t, rec).ID)
	})

	t.Run("empty name is 400", func(t *testing.T) {
		rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "  "})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field is 400", func(t *testing.T) {
		rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "x", "project_id": "p"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stranger sees 404", func(t *testing.T) {
		rec := s.do("mallory", http.MethodGet, "/api/folders/"+created.ID, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rename", func(t *testing.T) {
		rec := s.do("alice", http.MethodPatch, "/api/folders/"+created.ID, map[string]any{"name": "Q3"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "Q3", decode[models.Folder](t, rec).Name)
	})

	t.Run("tree and root", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/api/folders/tree", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decode[models.TreeNode](t, rec).Folders, 1)

		rec = s.do("alice", http.MethodGet, "/api/folders/root", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decode[models.FolderContents](t, rec).Folders, 1)
	})
}

func TestUploadAndDownload(t *testing.T) {
	s := newServer(t)

	rec := s.upload("alice", map[string]string{"name": "q3.pdf", "wrapped_key": "wk-alice"}, "ciphertext")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[models.File](t, rec)
	require.Equal(t, int64(len("ciphertext")), file.Size)

	rec = s.do("alice", http.MethodGet, "/api/files/"+file.ID+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	download := decode[services.FileDownload](t, rec)
	require.Equal(t, "wk-alice", download.WrappedKey)

	u, err := url.Parse(download.URL)
	require.NoError(t, err)

	rec = s.do("", http.MethodGet, u.RequestURI(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ciphertext", rec.Body.String())

	t.Run("tampered token", func(t *testing.T) {
		rec := s.do("", http.MethodGet, u.Path+"?token=bogus", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing wrapped key", func(t *testing.T) {
		rec := s.upload("alice", map[string]string{"name": "x.bin"}, "data")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("over quota", func(t *testing.T) {
		rec := s.upload("alice", map[string]string{"name": "big.bin", "wrapped_key": "wk"}, strings.Repeat("x", 2<<20))
		require.Equal(t, http.StatusInsufficientStorage, rec.Code)
	})
}

func TestShareRevokeRoutes(t *testing.T) {
	s := newServer(t)

	// Provision bob so he can be a recipient
	require.Equal(t, http.StatusOK, s.do("bob", http.MethodGet, "/api/me", nil).Code)

	rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "Shared"})
	folder := decode[models.Folder](t, rec)
	rec = s.upload("alice", map[string]string{"folder_id": folder.ID, "name": "a.txt", "wrapped_key": "wk-alice"}, "a")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[models.File](t, rec)

	rec = s.do("alice", http.MethodPost, "/api/shares/bulk", map[string]any{
		"recipient_id": "bob",
		"folders":      []map[string]any{{"folder_id": folder.ID}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bulk := decode[services.BulkShareResult](t, rec)
	require.Len(t, bulk.FolderGrants, 1)

	t.Run("visible but locked", func(t *testing.T) {
		rec := s.do("bob", http.MethodGet, "/api/folders/"+folder.ID+"/contents", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		contents := decode[models.FolderContents](t, rec)
		require.Len(t, contents.Files, 1)
		require.True(t, contents.Files[0].IsLocked)

		rec = s.do("bob", http.MethodGet, "/api/files/"+file.ID+"/download", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("pending sync lists bob", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/api/sync/folder/"+folder.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[struct {
			Pending []models.PendingSync `json:"pending"`
		}](t, rec)
		require.Len(t, body.Pending, 1)
		require.Equal(t, "bob", body.Pending[0].User.ID)
	})

	t.Run("share file then decrypt", func(t *testing.T) {
		rec := s.do("alice", http.MethodPost, "/api/shares/files", map[string]any{
			"file_id": file.ID, "recipient_id": "bob", "wrapped_key": "wk-bob",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do("alice", http.MethodPost, "/api/shares/files", map[string]any{
			"file_id": file.ID, "recipient_id": "bob", "wrapped_key": "wk-bob",
		})
		require.Equal(t, http.StatusConflict, rec.Code)

		rec = s.do("bob", http.MethodGet, "/api/files/"+file.ID+"/download", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "wk-bob", decode[services.FileDownload](t, rec).WrappedKey)
	})

	t.Run("revoke folder cascades", func(t *testing.T) {
		rec := s.do("alice", http.MethodDelete, "/api/grants/folder/"+bulk.FolderGrants[0].ID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		report := decode[models.CascadeReport](t, rec)
		require.True(t, report.Complete)
		require.Equal(t, int64(1), report.FileGrantsRemoved)

		rec = s.do("bob", http.MethodGet, "/api/shared-with-me", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"items":[]}`, rec.Body.String())
	})

	t.Run("bad kind", func(t *testing.T) {
		rec := s.do("alice", http.MethodDelete, "/api/grants/project/x", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTrashRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.upload("alice", map[string]string{"name": "old.txt", "wrapped_key": "wk"}, "old")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[models.File](t, rec)

	t.Run("purge of live file is 409", func(t *testing.T) {
		rec := s.do("alice", http.MethodDelete, "/api/trash/file/"+file.ID, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	rec = s.do("alice", http.MethodDelete, "/api/files/"+file.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[models.CascadeReport](t, rec)
	require.True(t, report.Applied)
	require.Equal(t, int64(3), report.BytesFreed)

	rec = s.do("alice", http.MethodGet, "/api/trash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[services.TrashListing](t, rec).Files, 1)

	rec = s.do("alice", http.MethodPost, "/api/trash/file/"+file.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{file.ID}, decode[models.CascadeReport](t, rec).ContentUnavailable)

	rec = s.do("alice", http.MethodDelete, "/api/files/"+file.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do("alice", http.MethodDelete, "/api/trash/file/"+file.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[models.CascadeReport](t, rec).Applied)

	t.Run("purge again is a no-op", func(t *testing.T) {
		rec := s.do("alice", http.MethodDelete, "/api/trash/file/"+file.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, decode[models.CascadeReport](t, rec).Applied)
	})
}

func TestUserRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.do("bob", http.MethodPut, "/api/me/public-key", map[string]any{"public_key": "pk-bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("alice", http.MethodGet, "/api/users/lookup?email=BOB@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[models.UserSummary](t, rec)
	require.Equal(t, "bob", summary.ID)

	rec = s.do("alice", http.MethodGet, "/api/users/lookup?email=nobody@example.com", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("alice", http.MethodGet, "/api/users/lookup", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadArchive(t *testing.T) {
	s := newServer(t)

	rec := s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "Album"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	album := decode[models.Folder](t, rec)
	rec = s.do("alice", http.MethodPost, "/api/folders", map[string]any{"name": "2026", "parent_id": album.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	year := decode[models.Folder](t, rec)

	require.Equal(t, http.StatusCreated, s.upload("alice", map[string]string{"folder_id": album.ID, "name": "cover.jpg", "wrapped_key": "k1"}, "C1").Code)
	require.Equal(t, http.StatusCreated, s.upload("alice", map[string]string{"folder_id": year.ID, "name": "jan.jpg", "wrapped_key": "k2"}, "J2").Code)

	rec = s.do("alice", http.MethodGet, "/api/folders/"+album.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"2026/jan.jpg", "cover.jpg", utils.ManifestName}, names)

	t.Run("stranger is forbidden", func(t *testing.T) {
		rec := s.do("mallory", http.MethodGet, "/api/folders/"+album.ID+"/archive", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
