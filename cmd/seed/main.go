package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"sealdrive/internal/blob"
	"sealdrive/internal/config"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/repository/postgres"
	authz "sealdrive/internal/service/auth"
	"sealdrive/internal/service/drive"
)

// seedUser is a demo account. Keys are placeholders; a real client derives them.
type seedUser struct {
	id    string
	email string
	name  string
}

var (
	alice = seedUser{id: "seed-alice", email: "alice@example.com", name: "Alice"}
	bob   = seedUser{id: "seed-bob", email: "bob@example.com", name: "Bob"}
	carol = seedUser{id: "seed-carol", email: "carol@example.com", name: "Carol"}
)

func main() {
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed data")
	clearData := flag.Bool("clear-data", false, "Remove all rows (keep schema)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" {
		log.Fatalf("BLOCKED: seeding is not allowed in the prod environment")
	}

	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	defer closeLog()

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	log.Printf("Ensuring schema (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	if err := postgres.ApplySchema(ctx, pool, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	if err := clearAll(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to clear data: %v", err)
	}
	if *clearData {
		log.Println("Data cleared")
		return
	}

	repoConfig := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
	folderRepo := postgres.NewFolderRepository(repoConfig)
	fileRepo := postgres.NewFileRepository(repoConfig)
	grantRepo := postgres.NewGrantRepository(repoConfig)
	userRepo := postgres.NewUserRepository(repoConfig)

	signer := blob.NewSigner(cfg.BlobSigningKey, cfg.PublicBaseURL)
	blobs, err := blob.NewDiskStore(cfg.BlobDir, signer)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}
	authorizer := authz.NewGrantAuthorizer(folderRepo, fileRepo, grantRepo)

	users := drive.NewUserService(userRepo, cfg.Policy.DefaultStorageLimit, logger)
	folders := drive.NewFolderService(folderRepo, fileRepo, logger)
	files := drive.NewFileService(drive.FileServiceDeps{
		Folders:    folderRepo,
		Files:      fileRepo,
		Grants:     grantRepo,
		Users:      userRepo,
		Usage:      postgres.NewUsageRepository(repoConfig),
		Blobs:      blobs,
		TxManager:  postgres.NewTransactionManager(repoConfig),
		Authorizer: authorizer,
		PresignTTL: cfg.PresignTTL,
		Logger:     logger,
	})
	shares := drive.NewShareService(drive.ShareServiceDeps{
		Folders:    folderRepo,
		Files:      fileRepo,
		Grants:     grantRepo,
		Users:      userRepo,
		Blobs:      blobs,
		Authorizer: authorizer,
		PresignTTL: cfg.PresignTTL,
		Logger:     logger,
	})

	s := &seeder{users: users, folders: folders, files: files, shares: shares}
	if err := s.run(ctx); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete")
}

type seeder struct {
	users   services.UserService
	folders services.FolderService
	files   services.FileService
	shares  services.ShareService
}

// run builds a small shared tree:
//
//	alice: Projects/ (shared with bob)
//	         plan.md       key for bob
//	         Drafts/
//	           idea.md     visible to bob, no key yet
//	       Personal/
//	         notes.md      shared with carol directly
func (s *seeder) run(ctx context.Context) error {
	for _, u := range []seedUser{alice, bob, carol} {
		claims := &models.AccessClaims{Email: u.email, Name: u.name}
		claims.Subject = u.id
		if _, err := s.users.EnsureUser(ctx, claims); err != nil {
			return fmt.Errorf("ensure %s: %w", u.id, err)
		}
		if _, err := s.users.SetPublicKey(ctx, u.id, placeholderKey("pub-"+u.id)); err != nil {
			return fmt.Errorf("public key %s: %w", u.id, err)
		}
		log.Printf("Created user %s (%s)", u.id, u.email)
	}

	projects, err := s.folder(ctx, "Projects", nil)
	if err != nil {
		return err
	}
	drafts, err := s.folder(ctx, "Drafts", &projects.ID)
	if err != nil {
		return err
	}
	personal, err := s.folder(ctx, "Personal", nil)
	if err != nil {
		return err
	}

	plan, err := s.upload(ctx, "plan.md", &projects.ID)
	if err != nil {
		return err
	}
	if _, err := s.upload(ctx, "idea.md", &drafts.ID); err != nil {
		return err
	}
	notes, err := s.upload(ctx, "notes.md", &personal.ID)
	if err != nil {
		return err
	}

	result, err := s.shares.ShareBulk(ctx, &services.ShareBulkRequest{
		OwnerID:     alice.id,
		RecipientID: bob.id,
		Folders:     []services.FolderShareItem{{FolderID: projects.ID}},
		Files: []services.FileShareItem{{
			FileID:     plan.ID,
			WrappedKey: placeholderKey("wrap-" + bob.id),
			Permission: models.PermissionEdit,
		}},
	})
	if err != nil {
		return fmt.Errorf("share Projects with bob: %w", err)
	}
	log.Printf("Shared Projects with %s (%d folder grants, %d file grants)",
		bob.id, len(result.FolderGrants), len(result.FileGrants))

	if _, err := s.shares.ShareFile(ctx, &services.ShareFileRequest{
		OwnerID:     alice.id,
		FileID:      notes.ID,
		RecipientID: carol.id,
		WrappedKey:  placeholderKey("wrap-" + carol.id),
	}); err != nil {
		return fmt.Errorf("share notes with carol: %w", err)
	}
	log.Printf("Shared notes.md with %s", carol.id)
	return nil
}

func (s *seeder) folder(ctx context.Context, name string, parentID *string) (*models.Folder, error) {
	f, err := s.folders.CreateFolder(ctx, &services.CreateFolderRequest{
		OwnerID:  alice.id,
		Name:     name,
		ParentID: parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}
	log.Printf("Created folder %s (ID: %s)", name, f.ID)
	return f, nil
}

// upload stores random bytes standing in for ciphertext
func (s *seeder) upload(ctx context.Context, name string, folderID *string) (*models.File, error) {
	content := make([]byte, 256)
	if _, err := rand.Read(content); err != nil {
		return nil, err
	}

	f, err := s.files.UploadFile(ctx, &services.UploadFileRequest{
		OwnerID:    alice.id,
		FolderID:   folderID,
		Name:       name,
		MimeType:   "text/markdown",
		WrappedKey: placeholderKey("wrap-" + alice.id),
		Content:    bytes.NewReader(content),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	log.Printf("Uploaded %s (ID: %s, %d bytes)", name, f.ID, f.Size)
	return f, nil
}

func placeholderKey(label string) string {
	return base64.StdEncoding.EncodeToString([]byte(label + "@" + time.Now().UTC().Format(time.RFC3339)))
}

// clearAll removes every row of every table
func clearAll(ctx context.Context, pool *pgxpool.Pool, t *postgres.TableNames) error {
	query := fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(t.ChildFirst(), ", "))
	_, err := pool.Exec(ctx, query)
	return err
}
