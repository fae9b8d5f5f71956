package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/auth"
	"dms-backend/internal/documents"
	"dms-backend/internal/extract"
	"dms-backend/internal/queue"
	sharedauth "dms-backend/internal/shared/auth"
	"dms-backend/internal/shared/cache"
	"dms-backend/internal/shared/config"
	"dms-backend/internal/shared/server"
	"dms-backend/internal/shared/storage/db"
	"dms-backend/internal/shared/storage/object"
	cloudinarystore "dms-backend/internal/shared/storage/object/cloudinary"
	localstore "dms-backend/internal/shared/storage/object/local"
	s3store "dms-backend/internal/shared/storage/object/s3"
	supabasestore "dms-backend/internal/shared/storage/object/supabase"
	"dms-backend/internal/shared/telemetry"
	"dms-backend/internal/speech"
	"dms-backend/internal/users"
)

const cacheKeyPrefix = "dms:"

// App holds shared dependencies and the HTTP router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Cache  cache.Store
	Events queue.Publisher
	Signer *sharedauth.Signer

	UsersRepo     users.Repo
	DocumentsRepo documents.DocumentsRepo

	AuthService      *auth.Service
	UsersService     *users.Service
	DocumentsService *documents.Service

	closers []io.Closer
}

// Build wires every dependency from cfg. Dev-like environments fall back to
// in-memory repositories when no database is reachable.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" && cfg.IsDevLike() {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.LogLevel != "" {
		telemetry.SetLevel(cfg.LogLevel)
	}
	ctx := context.Background()

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.closers = append(app.closers, sqlDB)
	}

	signer, err := sharedauth.NewSigner(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Signer = signer

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if app.Cache, err = app.buildCache(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if app.Events, err = app.buildEvents(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.buildServices()

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		DB:              app.DB,
		Verifier:        app.Signer,
		AuthHandler:     auth.NewHandler(app.AuthService),
		UserHandler:     users.NewHandler(app.UsersService),
		DocumentHandler: documents.NewHandler(app.DocumentsService, cfg.MaxUploadBytes),
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": app.Store.Provider(),
		"database":     app.DB != nil,
		"cache":        cfg.CacheBackend,
		"events":       cfg.EventsBackend,
		"token_ttl":    app.Signer.TTL().String(),
	})
	return app, nil
}

// Close releases connections held by the app.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{"fallback": "memory", "err": err})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:        cfg.AWSRegion,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case "cloudinary":
		return cloudinarystore.New(cloudinarystore.Options{
			URL:       cfg.CloudinaryURL,
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		})
	case "supabase":
		return supabasestore.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func (a *App) buildCache(ctx context.Context) (cache.Store, error) {
	cfg := a.Config
	switch cfg.CacheBackend {
	case "none":
		return cache.Noop{}, nil
	case "redis":
		rc, err := cache.NewRedisFromURL(ctx, cfg.RedisURL, cacheKeyPrefix)
		if err != nil {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap.redis_unavailable", map[string]any{"fallback": "memory", "err": err})
				return cache.NewMemory(cfg.CacheTTL, 0), nil
			}
			return nil, err
		}
		a.closers = append(a.closers, rc)
		return rc, nil
	default:
		return cache.NewMemory(cfg.CacheTTL, 0), nil
	}
}

func (a *App) buildEvents(ctx context.Context) (queue.Publisher, error) {
	cfg := a.Config
	switch cfg.EventsBackend {
	case "sqs":
		return queue.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	case "amqp":
		p, err := queue.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p)
		return p, nil
	default:
		return queue.Noop{}, nil
	}
}

func (a *App) buildServices() {
	if a.DB != nil {
		a.UsersRepo = &users.PGRepo{DB: a.DB}
		a.DocumentsRepo = &documents.PGRepo{DB: a.DB}
	} else {
		a.UsersRepo = users.NewMemoryRepo()
		a.DocumentsRepo = documents.NewMemoryRepo()
	}

	a.AuthService = auth.NewService(a.UsersRepo, a.Signer)
	a.UsersService = users.NewService(a.UsersRepo)

	uploader := &documents.Uploader{
		Store:       a.Store,
		Repo:        a.DocumentsRepo,
		Extract:     extract.Text,
		Events:      a.Events,
		Policy:      documents.ParsePolicy(a.Config.ExtractionFailurePolicy),
		Concurrency: a.Config.UploadConcurrency,

		ExtractFromStore: a.Config.ExtractFromStore,
	}
	a.DocumentsService = &documents.Service{
		Repo:     a.DocumentsRepo,
		Store:    a.Store,
		Uploader: uploader,
		Speech:   speech.NewGoogleTTS(a.Config.TTSBaseURL, nil),
		Lang:     a.Config.TTSLang,
		Cache:    a.Cache,
		CacheTTL: a.Config.CacheTTL,
		Events:   a.Events,
	}
}
