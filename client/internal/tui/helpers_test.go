//nolint:testpackage // Тесты в том же пакете для доступа к модели
package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/gophvault/client/internal/api"
	"github.com/maynagashev/gophvault/client/internal/session"
	"github.com/maynagashev/gophvault/models"
)

// MockAPIClient - мок для API клиента.
type MockAPIClient struct {
	mock.Mock
}

func (m *MockAPIClient) Register(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *MockAPIClient) Login(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

func (m *MockAPIClient) GetBalance(ctx context.Context) (*models.BalanceResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.BalanceResponse)
	return resp, args.Error(1)
}

func (m *MockAPIClient) Initialize(ctx context.Context) (*models.Receipt, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*models.Receipt)
	return r, args.Error(1)
}

func (m *MockAPIClient) Deposit(ctx context.Context, amount int64) (*models.Receipt, error) {
	args := m.Called(ctx, amount)
	r, _ := args.Get(0).(*models.Receipt)
	return r, args.Error(1)
}

func (m *MockAPIClient) Withdraw(ctx context.Context, amount int64) (*models.Receipt, error) {
	args := m.Called(ctx, amount)
	r, _ := args.Get(0).(*models.Receipt)
	return r, args.Error(1)
}

func (m *MockAPIClient) Close(ctx context.Context) (*models.CloseResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.CloseResponse)
	return resp, args.Error(1)
}

func (m *MockAPIClient) ListReceipts(ctx context.Context, limit, offset int) ([]models.Receipt, error) {
	args := m.Called(ctx, limit, offset)
	receipts, _ := args.Get(0).([]models.Receipt)
	return receipts, args.Error(1)
}

func (m *MockAPIClient) DownloadStatement(ctx context.Context, statementID string) (*models.Statement, error) {
	args := m.Called(ctx, statementID)
	st, _ := args.Get(0).(*models.Statement)
	return st, args.Error(1)
}

func (m *MockAPIClient) SetAuthToken(token string) {
	m.Called(token)
}

var _ api.Client = (*MockAPIClient)(nil)

// fakeStore - хранилище сессии в памяти.
type fakeStore struct {
	data     session.Data
	readOnly bool
	saves    int
	closed   bool
}

func (s *fakeStore) Load() session.Data { return s.data }

func (s *fakeStore) Save(d session.Data) error {
	if s.readOnly {
		return session.ErrReadOnly
	}
	s.data = d
	s.saves++
	return nil
}

func (s *fakeStore) ClearToken() error {
	if s.readOnly {
		return session.ErrReadOnly
	}
	s.data.Token = ""
	return nil
}

func (s *fakeStore) ReadOnly() bool { return s.readOnly }

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

// newTestModel создает модель с моками вместо сети и файла сессии.
func newTestModel(t *testing.T, client api.Client, store *fakeStore) *model {
	t.Helper()
	m := initModel(Options{SessionPath: "test.kdbx"})
	m.openSession = func(_, password string) (sessionStore, error) {
		if password != "secret" {
			return nil, session.ErrUnlock
		}
		return store, nil
	}
	m.newAPIClient = func(_ string) api.Client { return client }
	return m
}

// update отправляет сообщение в модель и возвращает ее вместе с командой.
func update(t *testing.T, m *model, msg tea.Msg) (*model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	um, ok := updated.(*model)
	require.True(t, ok)
	return um, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case keyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case keyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	case keyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case keyShiftTab:
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case keyRegister:
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case keyCtrlC:
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// typeText вводит строку посимвольно в активное поле.
func typeText(t *testing.T, m *model, s string) *model {
	t.Helper()
	for _, r := range s {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}
