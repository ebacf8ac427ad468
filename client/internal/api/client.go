package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
)

// Ошибки API клиента. Статусы ответа сервера переводятся в эти значения.
var (
	ErrAuthorization      = errors.New("ошибка авторизации")
	ErrUsernameTaken      = errors.New("имя пользователя уже занято")
	ErrVaultNotFound      = errors.New("хранилище не найдено")
	ErrVaultExists        = errors.New("хранилище уже существует")
	ErrInvalidAmount      = errors.New("сумма должна быть положительной")
	ErrInsufficientFunds  = errors.New("недостаточно средств")
	ErrOverflow           = errors.New("превышен максимальный баланс")
	ErrStatementNotFound  = errors.New("выписка не найдена")
	ErrServiceUnavailable = errors.New("сервер недоступен")
	ErrNoToken            = errors.New("токен аутентификации отсутствует")
)

const (
	defaultRequestTimeout   = 15 * time.Second
	defaultBreakerFailures  = 3
	defaultBreakerOpenDelay = 10 * time.Second
	maxErrorBody            = 512
)

// Client определяет интерфейс для взаимодействия с API сервера GophVault.
type Client interface {
	// Register регистрирует нового пользователя.
	Register(ctx context.Context, username, password string) error
	// Login аутентифицирует пользователя, запоминает и возвращает JWT токен.
	Login(ctx context.Context, username, password string) (string, error)
	// GetBalance возвращает баланс хранилища пользователя.
	GetBalance(ctx context.Context) (*models.BalanceResponse, error)
	// Initialize создает хранилище с нулевым балансом.
	Initialize(ctx context.Context) (*models.Receipt, error)
	// Deposit пополняет хранилище на amount лампортов.
	Deposit(ctx context.Context, amount int64) (*models.Receipt, error)
	// Withdraw снимает amount лампортов.
	Withdraw(ctx context.Context, amount int64) (*models.Receipt, error)
	// Close закрывает хранилище и возвращает весь остаток.
	Close(ctx context.Context) (*models.CloseResponse, error)
	// ListReceipts возвращает квитанции, новые первыми.
	ListReceipts(ctx context.Context, limit, offset int) ([]models.Receipt, error)
	// DownloadStatement загружает выписку закрытого хранилища.
	DownloadStatement(ctx context.Context, statementID string) (*models.Statement, error)
	// SetAuthToken устанавливает JWT токен для аутентифицированных запросов.
	SetAuthToken(token string)
}

// Option настраивает httpClient.
type Option func(*httpClient)

// WithHTTPClient задает HTTP клиент (например, с настроенным TLS).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.httpClient = hc }
}

// WithBreaker задает число подряд идущих сбоев до размыкания и время в разомкнутом состоянии.
func WithBreaker(failures uint32, openDelay time.Duration) Option {
	return func(c *httpClient) {
		c.breakerFailures = failures
		c.breakerOpenDelay = openDelay
	}
}

// httpClient реализует интерфейс Client для взаимодействия с сервером по HTTP.
type httpClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger

	breakerFailures  uint32
	breakerOpenDelay time.Duration

	mu        sync.RWMutex
	authToken string
}

// NewHTTPClient создает новый экземпляр API клиента.
func NewHTTPClient(baseURL string, log *zap.Logger, opts ...Option) Client {
	c := &httpClient{
		baseURL:          strings.TrimRight(baseURL, "/"),
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		log:              log,
		breakerFailures:  defaultBreakerFailures,
		breakerOpenDelay: defaultBreakerOpenDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := c.breakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gophvault-api",
		MaxRequests: 1,
		Timeout:     c.breakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("[API] Состояние circuit breaker изменилось",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// SetAuthToken устанавливает токен аутентификации для клиента.
func (c *httpClient) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *httpClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// request описывает один вызов API.
type request struct {
	op       string // Для сообщений об ошибках
	method   string
	path     string
	query    url.Values
	body     any
	auth     bool
	expected int
	// errors переопределяют перевод статусов в ошибки для конкретного вызова
	errors map[int]error
}

// response - прочитанный ответ сервера.
type response struct {
	status int
	body   []byte
}

// serverError - сбой на стороне сервера или транспорта. Только такие ошибки
// учитываются circuit breaker'ом, ответы 4xx считаются успешными вызовами.
type serverError struct {
	err error
}

func (e *serverError) Error() string { return e.err.Error() }
func (e *serverError) Unwrap() error { return e.err }

// do выполняет запрос через circuit breaker и декодирует ответ в out.
func (c *httpClient) do(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("%s: ошибка кодирования запроса: %w", r.op, err)
		}
	}

	var token string
	if r.auth {
		if token = c.token(); token == "" {
			return ErrNoToken
		}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, reqErr := http.NewRequestWithContext(ctx, r.method, target, body)
		if reqErr != nil {
			return nil, fmt.Errorf("ошибка создания запроса: %w", reqErr)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, &serverError{err: doErr}
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &serverError{err: readErr}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &serverError{err: fmt.Errorf("статус %d: %s", resp.StatusCode, trimBody(data))}
		}
		return &response{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		var se *serverError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.log.Warn("[API] Запрос отклонен circuit breaker", zap.String("op", r.op))
			return fmt.Errorf("%s: %w (%w)", r.op, ErrServiceUnavailable, err)
		case errors.As(err, &se):
			c.log.Warn("[API] Сбой запроса", zap.String("op", r.op), zap.Error(se.err))
			return fmt.Errorf("%s: %w: %w", r.op, ErrServiceUnavailable, se.err)
		default:
			return fmt.Errorf("%s: %w", r.op, err)
		}
	}

	resp, ok := result.(*response)
	if !ok {
		return fmt.Errorf("%s: неожиданный результат запроса", r.op)
	}
	if resp.status != r.expected {
		if mapped, ok := r.errors[resp.status]; ok {
			return mapped
		}
		if resp.status == http.StatusUnauthorized {
			return ErrAuthorization
		}
		return fmt.Errorf("%s: статус %d: %s", r.op, resp.status, trimBody(resp.body))
	}

	if out != nil {
		if err = json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("%s: ошибка декодирования ответа: %w", r.op, err)
		}
	}
	return nil
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// Register отправляет запрос на регистрацию на сервер.
func (c *httpClient) Register(ctx context.Context, username, password string) error {
	return c.do(ctx, request{
		op:       "регистрация",
		method:   http.MethodPost,
		path:     "/api/register",
		body:     models.RegisterRequest{Username: username, Password: password},
		expected: http.StatusCreated,
		errors:   map[int]error{http.StatusConflict: ErrUsernameTaken},
	}, nil)
}

// Login отправляет запрос на вход и сохраняет токен в клиенте.
func (c *httpClient) Login(ctx context.Context, username, password string) (string, error) {
	var resp models.LoginResponse
	err := c.do(ctx, request{
		op:       "вход",
		method:   http.MethodPost,
		path:     "/api/login",
		body:     models.LoginRequest{Username: username, Password: password},
		expected: http.StatusOK,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("сервер вернул пустой токен")
	}
	c.SetAuthToken(resp.Token)
	return resp.Token, nil
}

var vaultErrors = map[int]error{
	http.StatusNotFound: ErrVaultNotFound,
	http.StatusConflict: ErrVaultExists,
}

// GetBalance получает баланс хранилища.
func (c *httpClient) GetBalance(ctx context.Context) (*models.BalanceResponse, error) {
	var resp models.BalanceResponse
	err := c.do(ctx, request{
		op: "баланс", method: http.MethodGet, path: "/api/vault",
		auth: true, expected: http.StatusOK, errors: vaultErrors,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Initialize создает хранилище пользователя.
func (c *httpClient) Initialize(ctx context.Context) (*models.Receipt, error) {
	var receipt models.Receipt
	err := c.do(ctx, request{
		op: "создание хранилища", method: http.MethodPost, path: "/api/vault/initialize",
		auth: true, expected: http.StatusCreated, errors: vaultErrors,
	}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Deposit пополняет хранилище.
func (c *httpClient) Deposit(ctx context.Context, amount int64) (*models.Receipt, error) {
	var receipt models.Receipt
	err := c.do(ctx, request{
		op: "пополнение", method: http.MethodPost, path: "/api/vault/deposit",
		body: models.AmountRequest{Amount: amount}, auth: true, expected: http.StatusOK,
		errors: map[int]error{
			http.StatusNotFound:            ErrVaultNotFound,
			http.StatusBadRequest:          ErrInvalidAmount,
			http.StatusUnprocessableEntity: ErrOverflow,
		},
	}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Withdraw снимает средства из хранилища.
func (c *httpClient) Withdraw(ctx context.Context, amount int64) (*models.Receipt, error) {
	var receipt models.Receipt
	err := c.do(ctx, request{
		op: "снятие", method: http.MethodPost, path: "/api/vault/withdraw",
		body: models.AmountRequest{Amount: amount}, auth: true, expected: http.StatusOK,
		errors: map[int]error{
			http.StatusNotFound:            ErrVaultNotFound,
			http.StatusBadRequest:          ErrInvalidAmount,
			http.StatusUnprocessableEntity: ErrInsufficientFunds,
		},
	}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Close закрывает хранилище.
func (c *httpClient) Close(ctx context.Context) (*models.CloseResponse, error) {
	var resp models.CloseResponse
	err := c.do(ctx, request{
		op: "закрытие хранилища", method: http.MethodPost, path: "/api/vault/close",
		auth: true, expected: http.StatusOK, errors: vaultErrors,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListReceipts получает страницу квитанций.
func (c *httpClient) ListReceipts(ctx context.Context, limit, offset int) ([]models.Receipt, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var receipts []models.Receipt
	err := c.do(ctx, request{
		op: "список квитанций", method: http.MethodGet, path: "/api/vault/receipts", query: query,
		auth: true, expected: http.StatusOK,
	}, &receipts)
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DownloadStatement загружает выписку по ее ID.
func (c *httpClient) DownloadStatement(ctx context.Context, statementID string) (*models.Statement, error) {
	var st models.Statement
	err := c.do(ctx, request{
		op: "выписка", method: http.MethodGet, path: "/api/vault/statements/" + url.PathEscape(statementID),
		auth: true, expected: http.StatusOK,
		errors: map[int]error{http.StatusNotFound: ErrStatementNotFound},
	}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
