// Package memory is an in-process implementation of the repository
// interfaces. It backs local runs without DATABASE_URL and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

// Store holds every table in maps guarded by one lock. Repositories hand out
// copies so callers never alias stored rows.
type Store struct {
	mu sync.RWMutex

	users        map[string]*models.User
	folders      map[string]*models.Folder
	files        map[string]*models.File
	fileGrants   map[string]*models.FileGrant
	folderGrants map[string]*models.FolderGrant
	usage        []*models.UsageInterval
	tasks        map[string]*models.CascadeTask

	now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:        make(map[string]*models.User),
		folders:      make(map[string]*models.Folder),
		files:        make(map[string]*models.File),
		fileGrants:   make(map[string]*models.FileGrant),
		folderGrants: make(map[string]*models.FolderGrant),
		tasks:        make(map[string]*models.CascadeTask),
		now:          time.Now,
	}
}

func (s *Store) Users() repositories.UserRepository         { return &userRepo{s} }
func (s *Store) Folders() repositories.FolderRepository     { return &folderRepo{s} }
func (s *Store) Files() repositories.FileRepository         { return &fileRepo{s} }
func (s *Store) Grants() repositories.GrantRepository       { return &grantRepo{s} }
func (s *Store) Usage() repositories.UsageRepository        { return &usageRepo{s} }
func (s *Store) Journal() repositories.CascadeJournal       { return &journal{s} }
func (s *Store) TxManager() repositories.TransactionManager { return txManager{} }

// UsageIntervals returns a snapshot of every interval, for inspection
func (s *Store) UsageIntervals() []models.UsageInterval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.UsageInterval, 0, len(s.usage))
	for _, u := range s.usage {
		out = append(out, *u)
	}
	return out
}

// txManager runs fn directly. Each repository call is atomic on its own,
// which is all the in-memory backend promises.
type txManager struct{}

func (txManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

func newID() string {
	return uuid.NewString()
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortFolders(folders []models.Folder) {
	sort.Slice(folders, func(i, j int) bool {
		if folders[i].Name != folders[j].Name {
			return folders[i].Name < folders[j].Name
		}
		return folders[i].ID < folders[j].ID
	})
}

func sortFiles(files []models.File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return files[i].ID < files[j].ID
	})
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
