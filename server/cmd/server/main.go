package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maynagashev/gophvault/internal/logger"
	"github.com/maynagashev/gophvault/server/internal/handlers"
	"github.com/maynagashev/gophvault/server/internal/ledger"
	appmiddleware "github.com/maynagashev/gophvault/server/internal/middleware"
	"github.com/maynagashev/gophvault/server/internal/repository"
	"github.com/maynagashev/gophvault/server/internal/services"
	"github.com/maynagashev/gophvault/server/internal/storage"
	"github.com/maynagashev/gophvault/server/internal/token"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	startupTimeout         = 30 * time.Second
)

// Подменяются в тестах.
var (
	newPostgresDB = repository.NewPostgresDB
	runMigrations = repository.Migrate
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db            *sqlx.DB
	authHandler   *handlers.AuthHandler
	vaultHandler  *handlers.VaultHandler
	authenticator func(http.Handler) http.Handler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}

	if err = run(cfg, log); err != nil {
		log.Error("Ошибка выполнения сервера", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run(cfg *config, log *zap.Logger) error {
	log.Info("Запуск сервера GophVault...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	deps, err := setupDependencies(startupCtx, cfg, log)
	cancel()
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			log.Warn("Ошибка закрытия соединения с БД", zap.Error(closeErr))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupRouter(deps.authHandler, deps.vaultHandler, deps.authenticator, log),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var serveErr error
		if cfg.TLSEnabled() {
			log.Info("Запуск HTTPS-сервера", zap.String("port", cfg.Port), zap.String("cert", cfg.CertFile))
			serveErr = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			log.Warn("TLS не настроен, запуск HTTP-сервера", zap.String("port", cfg.Port))
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Остановка сервера...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("ошибка остановки сервера: %w", shutdownErr)
		}
		return nil
	})

	if err = g.Wait(); err != nil {
		return err
	}
	log.Info("Сервер остановлен")
	return nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
// Движок учета восстанавливается из БД до того, как сервер начнет принимать запросы.
func setupDependencies(ctx context.Context, cfg *config, log *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	tokens, err := token.NewManager(cfg.JWTSecret, token.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации JWT: %w", err)
	}

	// 1. Подключение к БД и миграции
	deps.db, err = newPostgresDB(cfg.DatabaseDSN, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}
	closeDB := func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			log.Warn("Ошибка закрытия соединения с БД", zap.Error(closeErr))
		}
	}
	if err = runMigrations(deps.db, log); err != nil {
		closeDB()
		return nil, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	// 2. Хранилище выписок
	fileStorage, err := storage.NewMinioClient(ctx, storage.MinioConfig{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioUser,
		SecretAccessKey: cfg.MinioPassword,
		UseSSL:          cfg.MinioUseSSL,
		BucketName:      cfg.MinioBucket,
	}, log)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	// 3. Репозитории
	userRepo := repository.NewPostgresUserRepository(deps.db, log)
	vaultRepo := repository.NewPostgresVaultRepository(deps.db, log)
	receiptRepo := repository.NewPostgresReceiptRepository(deps.db, log)

	// 4. Сервисы
	engine := ledger.New(cfg.LedgerShards)
	vaultService := services.NewVaultService(engine, vaultRepo, receiptRepo, fileStorage, log)
	if err = vaultService.Restore(ctx); err != nil {
		closeDB()
		return nil, err
	}
	authService := services.NewAuthService(userRepo, tokens, log)

	// 5. Обработчики
	deps.authHandler = handlers.NewAuthHandler(authService, log)
	deps.vaultHandler = handlers.NewVaultHandler(vaultService, log)
	deps.authenticator = appmiddleware.NewAuthenticator(tokens, log)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(
	authHandler *handlers.AuthHandler,
	vaultHandler *handlers.VaultHandler,
	authenticator func(http.Handler) http.Handler,
	log *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Хранилище владельца из токена
		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Route("/vault", func(r chi.Router) {
				r.Get("/", vaultHandler.GetBalance)
				r.Post("/initialize", vaultHandler.Initialize)
				r.Post("/deposit", vaultHandler.Deposit)
				r.Post("/withdraw", vaultHandler.Withdraw)
				r.Post("/close", vaultHandler.Close)
				r.Get("/receipts", vaultHandler.ListReceipts)
				r.Get("/statements/{statementID}", vaultHandler.DownloadStatement)
			})
		})
	})
	return r
}
