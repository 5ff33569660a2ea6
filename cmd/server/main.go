package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"sealdrive/internal/auth"
	"sealdrive/internal/blob"
	"sealdrive/internal/config"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/handler"
	"sealdrive/internal/middleware"
	"sealdrive/internal/repository/memory"
	"sealdrive/internal/repository/postgres"
	authz "sealdrive/internal/service/auth"
	"sealdrive/internal/service/drive"
)

// repos is the set of repositories every service is built from
type repos struct {
	users     repositories.UserRepository
	folders   repositories.FolderRepository
	files     repositories.FileRepository
	grants    repositories.GrantRepository
	usage     repositories.UsageRepository
	journal   repositories.CascadeJournal
	txManager repositories.TransactionManager
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"blob_backend", cfg.BlobBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openRepos(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	signer := blob.NewSigner(cfg.BlobSigningKey, cfg.PublicBaseURL)
	blobs, compactor, closeBlobs, err := openBlobStore(cfg, signer)
	if err != nil {
		return err
	}
	defer closeBlobs()

	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return err
	}
	defer verifier.Close()

	authorizer := authz.NewGrantAuthorizer(store.folders, store.files, store.grants)

	userService := drive.NewUserService(store.users, cfg.Policy.DefaultStorageLimit, logger)
	folderService := drive.NewFolderService(store.folders, store.files, logger)
	fileService := drive.NewFileService(drive.FileServiceDeps{
		Folders:    store.folders,
		Files:      store.files,
		Grants:     store.grants,
		Users:      store.users,
		Usage:      store.usage,
		Blobs:      blobs,
		TxManager:  store.txManager,
		Authorizer: authorizer,
		PresignTTL: cfg.PresignTTL,
		Logger:     logger,
	})
	shareService := drive.NewShareService(drive.ShareServiceDeps{
		Folders:    store.folders,
		Files:      store.files,
		Grants:     store.grants,
		Users:      store.users,
		Blobs:      blobs,
		Authorizer: authorizer,
		PresignTTL: cfg.PresignTTL,
		Logger:     logger,
	})
	syncService := drive.NewSyncService(store.folders, store.files, store.grants, store.users, logger)
	revokeService := drive.NewRevocationService(store.folders, store.files, store.grants, store.journal, logger)
	trashService := drive.NewTrashService(drive.TrashServiceDeps{
		Folders:   store.folders,
		Files:     store.files,
		Grants:    store.grants,
		Users:     store.users,
		Usage:     store.usage,
		Blobs:     blobs,
		TxManager: store.txManager,
		Journal:   store.journal,
		Logger:    logger,
	})
	sweeper := drive.NewSweeper(drive.SweeperDeps{
		Trash:     trashService,
		Revoker:   revokeService,
		Journal:   store.journal,
		Compactor: compactor,
		Policy:    cfg.Policy,
		Logger:    logger,
	})

	handlers := &handler.Handlers{
		Folders: handler.NewFolderHandler(folderService, shareService, blobs, logger),
		Files:   handler.NewFileHandler(fileService, logger),
		Shares:  handler.NewShareHandler(shareService, revokeService, syncService, logger),
		Trash:   handler.NewTrashHandler(trashService, logger),
		Users:   handler.NewUserHandler(userService, logger),
		Blobs:   handler.NewBlobHandler(blobs, signer, logger),
	}

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	handlers.Register(mux)

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → RequestLogger → Auth → Routes
	var h http.Handler = mux
	h = middleware.Auth(verifier, userService, logger)(h)
	h = middleware.RequestLogger(logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0, // Body reads and writes are unbounded so large uploads and downloads can stream
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openRepos connects to Postgres when DATABASE_URL is set. Without it the
// in-memory store is used, which is refused in prod.
func openRepos(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repos, func(), error) {
	if cfg.DatabaseURL == "" {
		if cfg.Environment == "prod" {
			return nil, nil, errors.New("DATABASE_URL is required in prod")
		}
		logger.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		store := memory.NewStore()
		return &repos{
			users:     store.Users(),
			folders:   store.Folders(),
			files:     store.Files(),
			grants:    store.Grants(),
			usage:     store.Usage(),
			journal:   store.Journal(),
			txManager: store.TxManager(),
		}, func() {}, nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}

	logger.Info("database connected",
		"max_conns", pool.Config().MaxConns,
		"min_conns", pool.Config().MinConns,
	)

	if cfg.ApplySchema {
		if err := postgres.ApplySchema(ctx, pool, cfg.TablePrefix); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("schema applied", "table_prefix", cfg.TablePrefix)
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	return &repos{
		users:     postgres.NewUserRepository(repoConfig),
		folders:   postgres.NewFolderRepository(repoConfig),
		files:     postgres.NewFileRepository(repoConfig),
		grants:    postgres.NewGrantRepository(repoConfig),
		usage:     postgres.NewUsageRepository(repoConfig),
		journal:   postgres.NewCascadeJournal(repoConfig),
		txManager: postgres.NewTransactionManager(repoConfig),
	}, pool.Close, nil
}

// openBlobStore selects the blob backend. The badger store also compacts its
// value log from the sweeper.
func openBlobStore(cfg *config.Config, signer *blob.Signer) (services.BlobStore, drive.Compactor, func(), error) {
	switch cfg.BlobBackend {
	case "badger":
		store, err := blob.OpenBadgerStore(cfg.BlobDir, signer)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open badger blob store: %w", err)
		}
		return store, store, func() { _ = store.Close() }, nil
	case "disk", "":
		store, err := blob.NewDiskStore(cfg.BlobDir, signer)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// newVerifier uses the identity provider's JWKS when configured. In dev,
// tokens may instead be HS256-signed with the blob signing key.
func newVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		v, err := auth.NewJWKSVerifier(cfg.JWKSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("create JWT verifier: %w", err)
		}
		return v, nil
	}
	if cfg.Environment == "prod" {
		return nil, errors.New("JWKS_URL is required in prod")
	}
	logger.Warn("JWKS_URL not set, accepting HS256 tokens signed with BLOB_SIGNING_KEY (dev only)")
	return auth.NewHMACVerifier(cfg.BlobSigningKey), nil
}
