package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/internal/logger"
	"github.com/maynagashev/gophvault/models"
	"github.com/maynagashev/gophvault/server/internal/handlers"
	"github.com/maynagashev/gophvault/server/internal/ledger"
	appmiddleware "github.com/maynagashev/gophvault/server/internal/middleware"
	"github.com/maynagashev/gophvault/server/internal/services"
	"github.com/maynagashev/gophvault/server/internal/storage"
	"github.com/maynagashev/gophvault/server/internal/token"
)

// --- In-memory зависимости для сквозного теста роутера --- //

type memVaultRepo struct {
	mu      sync.Mutex
	records map[string]models.VaultRecord
}

func (m *memVaultRepo) SaveSnapshot(_ context.Context, record models.VaultRecord, _ uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Owner] = record
	return true, nil
}

func (m *memVaultRepo) ListOpenVaults(context.Context) ([]models.VaultRecord, error) {
	return nil, nil
}

func (m *memVaultRepo) MaxSequence(context.Context) (uint64, error) {
	return 0, nil
}

type memReceiptRepo struct {
	mu       sync.Mutex
	receipts []models.Receipt
}

func (m *memReceiptRepo) AppendReceipt(_ context.Context, r models.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *memReceiptRepo) ListByOwner(_ context.Context, owner string, limit, offset int) ([]models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Receipt
	for i := len(m.receipts) - 1; i >= 0; i-- {
		if m.receipts[i].Owner == owner {
			out = append(out, m.receipts[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReceiptRepo) ListLifecycle(_ context.Context, owner string, until uint64) ([]models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Receipt
	for _, r := range m.receipts {
		if r.Owner != owner || r.SequenceID > until {
			continue
		}
		if r.Operation == models.OperationInitialize {
			out = out[:0]
		}
		out = append(out, r)
	}
	return out, nil
}

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memFiles) UploadFile(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memFiles) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type noAuth struct{}

func (noAuth) Register(context.Context, string, string) error { return nil }
func (noAuth) Login(context.Context, string, string) (string, error) { return "", nil }

func newTestRouter(t *testing.T) (*chi.Mux, *token.Manager) {
	t.Helper()
	tm, err := token.NewManager("router-secret", time.Hour)
	require.NoError(t, err)

	log := logger.Nop()
	vaultService := services.NewVaultService(
		ledger.New(ledger.DefaultShards),
		&memVaultRepo{records: map[string]models.VaultRecord{}},
		&memReceiptRepo{},
		&memFiles{objects: map[string][]byte{}},
		log,
	)
	r := setupRouter(
		handlers.NewAuthHandler(noAuth{}, log),
		handlers.NewVaultHandler(vaultService, log),
		appmiddleware.NewAuthenticator(tm, log),
		log,
	)
	return r, tm
}

func TestSetupRouter(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NotNil(t, r)

	routes := []struct{ method, pattern string }{
		{http.MethodGet, "/ping"},
		{http.MethodPost, "/api/register"},
		{http.MethodPost, "/api/login"},
		{http.MethodGet, "/api/vault/"},
		{http.MethodPost, "/api/vault/initialize"},
		{http.MethodPost, "/api/vault/deposit"},
		{http.MethodPost, "/api/vault/withdraw"},
		{http.MethodPost, "/api/vault/close"},
		{http.MethodGet, "/api/vault/receipts"},
		{http.MethodGet, "/api/vault/statements/{statementID}"},
	}
	for _, route := range routes {
		assert.True(t, hasRoute(r, route.method, route.pattern), "нет маршрута %s %s", route.method, route.pattern)
	}
}

// Вспомогательная функция для проверки наличия маршрута.
func hasRoute(r chi.Router, method, pattern string) bool {
	found := false
	// Ошибка chi.Walk используется только для прерывания обхода
	_ = chi.Walk(r, func(m, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if m == method && route == pattern {
			found = true
			return errors.New("found")
		}
		return nil
	})
	return found
}

func TestRouter_PingAndAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong\n", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vault", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// Сценарий: init, пополнение 0.01 SOL, снятие 0.005 SOL, закрытие, выписка.
func TestRouter_VaultLifecycle(t *testing.T) {
	r, tm := newTestRouter(t)
	signed, err := tm.Issue(42)
	require.NoError(t, err)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Authorization", "Bearer "+signed)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/api/vault/initialize", "").Code)
	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/api/vault/initialize", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/vault/deposit", `{"amount":10000000}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		do(http.MethodPost, "/api/vault/withdraw", `{"amount":20000000}`).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/vault/withdraw", `{"amount":5000000}`).Code)

	rr := do(http.MethodGet, "/api/vault", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"owner":"42","balance":5000000}`, rr.Body.String())

	rr = do(http.MethodPost, "/api/vault/close", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var closed models.CloseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &closed))
	assert.Equal(t, int64(5_000_000), closed.Receipt.ReturnedAmount)
	assert.Equal(t, uint64(4), closed.Receipt.SequenceID)
	require.NotEmpty(t, closed.StatementID)

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/vault", "").Code)

	rr = do(http.MethodGet, "/api/vault/statements/"+closed.StatementID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st models.Statement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Len(t, st.Receipts, 4)

	rr = do(http.MethodGet, "/api/vault/receipts?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var receipts []models.Receipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipts))
	require.Len(t, receipts, 2)
	assert.Equal(t, models.OperationClose, receipts[0].Operation)
}

func TestSetupDependencies(t *testing.T) {
	originalNewPostgresDB := newPostgresDB
	originalRunMigrations := runMigrations
	t.Cleanup(func() {
		newPostgresDB = originalNewPostgresDB
		runMigrations = originalRunMigrations
	})
	ctx := context.Background()

	t.Run("Ошибка: пустой секрет JWT", func(t *testing.T) {
		_, err := setupDependencies(ctx, &config{DatabaseDSN: "postgres://db"}, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT")
	})

	t.Run("Ошибка: Некорректный DatabaseDSN", func(t *testing.T) {
		newPostgresDB = originalNewPostgresDB
		cfg := &config{DatabaseDSN: "невалидный dsn", JWTSecret: "s"}
		_, err := setupDependencies(ctx, cfg, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка инициализации БД")
	})

	t.Run("Ошибка: миграции", func(t *testing.T) {
		newPostgresDB = sqlmockDB(t)
		runMigrations = func(*sqlx.DB, *zap.Logger) error { return errors.New("dirty") }
		_, err := setupDependencies(ctx, &config{DatabaseDSN: "mock", JWTSecret: "s"}, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка применения миграций")
	})

	t.Run("Ошибка: Некорректный MinIO Endpoint", func(t *testing.T) {
		newPostgresDB = sqlmockDB(t)
		runMigrations = func(*sqlx.DB, *zap.Logger) error { return nil }
		cfg := &config{
			DatabaseDSN:   "mock",
			JWTSecret:     "s",
			MinioEndpoint: "invalid endpoint with spaces",
			MinioBucket:   "b",
		}
		_, err := setupDependencies(ctx, cfg, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка инициализации клиента MinIO")
	})
}

func sqlmockDB(t *testing.T) func(string, *zap.Logger) (*sqlx.DB, error) {
	t.Helper()
	return func(string, *zap.Logger) (*sqlx.DB, error) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()
		return sqlx.NewDb(mockDB, "sqlmock"), nil
	}
}
