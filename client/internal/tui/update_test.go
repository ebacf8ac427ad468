//nolint:testpackage // Тесты в том же пакете для доступа к модели
package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/gophvault/client/internal/api"
	"github.com/maynagashev/gophvault/client/internal/session"
	"github.com/maynagashev/gophvault/models"
)

func TestUnlockScreen(t *testing.T) {
	t.Run("ПустойПароль", func(t *testing.T) {
		m := newTestModel(t, new(MockAPIClient), &fakeStore{})
		m, cmd := update(t, m, key(keyEnter))
		assert.Nil(t, cmd)
		require.ErrorIs(t, m.err, session.ErrEmptyPassword)
		assert.Equal(t, unlockScreen, m.state)
	})

	t.Run("НеверныйПароль", func(t *testing.T) {
		m := newTestModel(t, new(MockAPIClient), &fakeStore{})
		m = typeText(t, m, "wrong")
		m, cmd := update(t, m, key(keyEnter))
		require.NotNil(t, cmd)

		m, _ = update(t, m, cmd())
		require.ErrorIs(t, m.err, session.ErrUnlock)
		assert.Equal(t, unlockScreen, m.state)
		assert.Empty(t, m.passwordInput.Value())
		assert.Contains(t, m.View(), "неверный пароль")
	})

	t.Run("НоваяСессия_ЭкранВхода", func(t *testing.T) {
		m := newTestModel(t, new(MockAPIClient), &fakeStore{})
		m.serverURL = "https://localhost:8443"
		m = typeText(t, m, "secret")
		m, cmd := update(t, m, key(keyEnter))
		require.NotNil(t, cmd)

		m, _ = update(t, m, cmd())
		assert.Equal(t, loginScreen, m.state)
		assert.Equal(t, loginFieldServer, m.loginFocus)
		assert.Equal(t, "https://localhost:8443", m.loginInputs[loginFieldServer].Value())
	})

	t.Run("СохраненныйТокен_СразуПанель", func(t *testing.T) {
		client := new(MockAPIClient)
		client.On("SetAuthToken", "saved-token").Once()
		client.On("GetBalance", mock.Anything).
			Return(&models.BalanceResponse{Owner: "1", Balance: 10_000_000}, nil).Once()
		store := &fakeStore{data: session.Data{
			ServerURL: "https://vault.example", Username: "alice", Token: "saved-token",
		}}

		m := newTestModel(t, client, store)
		m, cmd := update(t, m, sessionOpenedMsg{store: store})
		require.NotNil(t, cmd)
		assert.Equal(t, dashboardScreen, m.state)
		assert.True(t, m.busy)

		m, _ = update(t, m, cmd())
		assert.False(t, m.busy)
		assert.True(t, m.vaultExists)
		assert.Equal(t, int64(10_000_000), m.balance)
		assert.Contains(t, m.View(), "0.01 SOL")
		client.AssertExpectations(t)
	})
}

func TestLoginScreen(t *testing.T) {
	openLogin := func(t *testing.T, client *MockAPIClient, store *fakeStore) *model {
		t.Helper()
		m := newTestModel(t, client, store)
		m, _ = update(t, m, sessionOpenedMsg{store: store})
		require.Equal(t, loginScreen, m.state)
		m = typeText(t, m, "https://vault.example/")
		m, _ = update(t, m, key(keyTab))
		m = typeText(t, m, "alice")
		m, _ = update(t, m, key(keyTab))
		return typeText(t, m, "pw")
	}

	t.Run("ПереключениеПолей", func(t *testing.T) {
		m := newTestModel(t, new(MockAPIClient), &fakeStore{})
		m, _ = update(t, m, sessionOpenedMsg{store: &fakeStore{}})
		m, _ = update(t, m, key(keyShiftTab))
		assert.Equal(t, loginFieldPassword, m.loginFocus)
		m, _ = update(t, m, key(keyTab))
		assert.Equal(t, loginFieldServer, m.loginFocus)
		m, _ = update(t, m, key(keyEnter))
		assert.Equal(t, loginFieldUsername, m.loginFocus)
	})

	t.Run("НеЗаполненыПоля", func(t *testing.T) {
		m := newTestModel(t, new(MockAPIClient), &fakeStore{})
		m, _ = update(t, m, sessionOpenedMsg{store: &fakeStore{}})
		m, cmd := update(t, m, key(keyRegister))
		assert.Nil(t, cmd)
		require.ErrorIs(t, m.err, errEmptyCredentials)
	})

	t.Run("УспешныйВход", func(t *testing.T) {
		client := new(MockAPIClient)
		client.On("Login", mock.Anything, "alice", "pw").Return("jwt", nil).Once()
		client.On("SetAuthToken", "jwt").Once()
		store := &fakeStore{}

		m := openLogin(t, client, store)
		m, cmd := update(t, m, key(keyEnter))
		require.NotNil(t, cmd)
		assert.True(t, m.busy)

		msg := m.makeLoginCmd("https://vault.example", "alice", "pw")()
		m, cmd = update(t, m, msg)
		require.NotNil(t, cmd)
		assert.Equal(t, dashboardScreen, m.state)
		assert.Equal(t, session.Data{ServerURL: "https://vault.example", Username: "alice", Token: "jwt"}, store.data)
		assert.Empty(t, m.loginInputs[loginFieldPassword].Value())
		client.AssertExpectations(t)
	})

	t.Run("ВходТолькоДляЧтения", func(t *testing.T) {
		client := new(MockAPIClient)
		client.On("SetAuthToken", "jwt").Once()
		store := &fakeStore{readOnly: true}

		m := openLogin(t, client, store)
		m.apiClient = client
		m, _ = update(t, m, loginSuccessMsg{serverURL: "https://vault.example", username: "alice", token: "jwt"})
		assert.Equal(t, dashboardScreen, m.state)
		assert.Zero(t, store.saves)
		assert.Contains(t, m.status, "только чтение")
	})

	t.Run("НеверныйПароль", func(t *testing.T) {
		client := new(MockAPIClient)
		client.On("Login", mock.Anything, "alice", "pw").Return("", api.ErrAuthorization).Once()

		m := openLogin(t, client, &fakeStore{})
		m, _ = update(t, m, key(keyEnter))
		m, _ = update(t, m, m.makeLoginCmd("https://vault.example", "alice", "pw")())
		assert.Equal(t, loginScreen, m.state)
		require.ErrorIs(t, m.err, api.ErrAuthorization)
		assert.False(t, m.busy)
	})

	t.Run("РегистрацияИВход", func(t *testing.T) {
		client := new(MockAPIClient)
		client.On("Register", mock.Anything, "alice", "pw").Return(nil).Once()
		client.On("Login", mock.Anything, "alice", "pw").Return("jwt", nil).Once()

		m := openLogin(t, client, &fakeStore{})
		m, cmd := update(t, m, key(keyRegister))
		require.NotNil(t, cmd)

		msg := m.makeRegisterCmd("https://vault.example", "alice", "pw")()
		require.IsType(t, registerSuccessMsg{}, msg)
		m, cmd = update(t, m, msg)
		require.NotNil(t, cmd)
		assert.True(t, m.busy)

		loginMsg := m.makeLoginCmd("https://vault.example", "alice", "pw")()
		assert.Equal(t, loginSuccessMsg{serverURL: "https://vault.example", username: "alice", token: "jwt"}, loginMsg)
		client.AssertExpectations(t)
	})
}

// dashboardModel возвращает модель на панели с известным балансом.
func dashboardModel(t *testing.T, client *MockAPIClient, store *fakeStore, balance int64, exists bool) *model {
	t.Helper()
	m := newTestModel(t, client, store)
	m.store = store
	m.apiClient = client
	m.username = "alice"
	m.serverURL = "https://vault.example"
	m.state = dashboardScreen
	m, _ = update(t, m, balanceMsg{balance: balance, exists: exists})
	return m
}

func TestDashboard_VaultLifecycle(t *testing.T) {
	client := new(MockAPIClient)
	client.On("Initialize", mock.Anything).Return(&models.Receipt{
		SequenceID: 1, Owner: "1", Operation: models.OperationInitialize,
	}, nil).Once()
	client.On("Deposit", mock.Anything, int64(10_000_000)).Return(&models.Receipt{
		SequenceID: 2, Owner: "1", Operation: models.OperationDeposit,
		AmountDelta: 10_000_000, ResultingBalance: 10_000_000,
	}, nil).Once()
	client.On("Withdraw", mock.Anything, int64(5_000_000)).Return(&models.Receipt{
		SequenceID: 3, Owner: "1", Operation: models.OperationWithdraw,
		AmountDelta: -5_000_000, ResultingBalance: 5_000_000,
	}, nil).Once()
	client.On("Close", mock.Anything).Return(&models.CloseResponse{
		Receipt: models.Receipt{
			SequenceID: 4, Owner: "1", Operation: models.OperationClose,
			AmountDelta: -5_000_000, ReturnedAmount: 5_000_000,
		},
		StatementID: "a6e4c1c2-3d0b-4a53-9c55-5e8e2f5d7c10",
	}, nil).Once()

	m := dashboardModel(t, client, &fakeStore{}, 0, false)
	assert.Contains(t, m.View(), "Хранилище не создано")

	// Создание
	m, cmd := update(t, m, key(keyInit))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.True(t, m.vaultExists)
	assert.Equal(t, uint64(1), m.lastReceipt.SequenceID)

	// Пополнение 0.01 SOL
	m, _ = update(t, m, key(keyDeposit))
	require.Equal(t, amountScreen, m.state)
	assert.False(t, m.withdrawMode)
	m = typeText(t, m, "0.01")
	m, cmd = update(t, m, key(keyEnter))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, dashboardScreen, m.state)
	assert.Equal(t, int64(10_000_000), m.balance)

	// Снятие 0.005 SOL
	m, _ = update(t, m, key(keyWithdraw))
	require.True(t, m.withdrawMode)
	m = typeText(t, m, "0,005")
	m, cmd = update(t, m, key(keyEnter))
	m, _ = update(t, m, cmd())
	assert.Equal(t, int64(5_000_000), m.balance)

	// Закрытие с подтверждением
	m, _ = update(t, m, key(keyClose))
	require.Equal(t, confirmCloseScreen, m.state)
	assert.Contains(t, m.View(), "0.005 SOL")
	m, cmd = update(t, m, key(keyYes))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, dashboardScreen, m.state)
	assert.False(t, m.vaultExists)
	assert.Equal(t, "a6e4c1c2-3d0b-4a53-9c55-5e8e2f5d7c10", m.statementID)
	assert.Contains(t, m.status, "возвращено 0.005 SOL")
	client.AssertExpectations(t)
}

func TestDashboard_Guards(t *testing.T) {
	tests := []struct {
		name      string
		exists    bool
		key       string
		wantState screenState
		wantCmd   bool
	}{
		{name: "СозданиеСуществующего", exists: true, key: keyInit, wantState: dashboardScreen, wantCmd: true},
		{name: "ПополнениеБезХранилища", exists: false, key: keyDeposit, wantState: dashboardScreen, wantCmd: true},
		{name: "ЗакрытиеБезХранилища", exists: false, key: keyClose, wantState: dashboardScreen, wantCmd: true},
		{name: "ПодтверждениеЗакрытия", exists: true, key: keyClose, wantState: confirmCloseScreen},
		{name: "Выход", exists: true, key: keyQuit, wantState: dashboardScreen, wantCmd: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := dashboardModel(t, new(MockAPIClient), &fakeStore{}, 0, tt.exists)
			m, cmd := update(t, m, key(tt.key))
			assert.Equal(t, tt.wantState, m.state)
			assert.Equal(t, tt.wantCmd, cmd != nil)
			assert.False(t, m.busy)
		})
	}
}

func TestAmountScreen_InvalidInput(t *testing.T) {
	m := dashboardModel(t, new(MockAPIClient), &fakeStore{}, 0, true)
	m, _ = update(t, m, key(keyDeposit))
	m = typeText(t, m, "0.0000000001")
	m, cmd := update(t, m, key(keyEnter))
	assert.Nil(t, cmd)
	require.ErrorIs(t, m.err, errAmountPrecision)
	assert.Equal(t, amountScreen, m.state)

	m, _ = update(t, m, key(keyEsc))
	assert.Equal(t, dashboardScreen, m.state)
	assert.NoError(t, m.err)
}

func TestBusinessErrorStaysOnScreen(t *testing.T) {
	client := new(MockAPIClient)
	client.On("Withdraw", mock.Anything, int64(1_000_000_000)).Return(nil, api.ErrInsufficientFunds).Once()

	m := dashboardModel(t, client, &fakeStore{}, 5_000_000, true)
	m, _ = update(t, m, key(keyWithdraw))
	m = typeText(t, m, "1")
	m, cmd := update(t, m, key(keyEnter))
	m, _ = update(t, m, cmd())

	require.ErrorIs(t, m.err, api.ErrInsufficientFunds)
	assert.Equal(t, amountScreen, m.state)
	assert.Equal(t, int64(5_000_000), m.balance)
	assert.False(t, m.busy)
}

func TestExpiredTokenReturnsToLogin(t *testing.T) {
	client := new(MockAPIClient)
	client.On("GetBalance", mock.Anything).Return(nil, api.ErrAuthorization).Once()
	store := &fakeStore{data: session.Data{ServerURL: "https://vault.example", Username: "alice", Token: "old"}}

	m := dashboardModel(t, client, store, 0, true)
	m, cmd := update(t, m, key(keyRefresh))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, loginScreen, m.state)
	assert.Equal(t, loginFieldPassword, m.loginFocus)
	assert.Empty(t, store.data.Token)
	assert.Equal(t, "alice", store.data.Username)
	require.Error(t, m.err)
}

func TestBalanceNotFoundMeansNoVault(t *testing.T) {
	client := new(MockAPIClient)
	client.On("GetBalance", mock.Anything).Return(nil, api.ErrVaultNotFound).Once()

	m := dashboardModel(t, client, &fakeStore{}, 0, true)
	msg := m.makeBalanceCmd()()
	assert.Equal(t, balanceMsg{exists: false}, msg)
}

func TestReceiptsScreen(t *testing.T) {
	client := new(MockAPIClient)
	client.On("ListReceipts", mock.Anything, receiptsPageSize, 0).Return([]models.Receipt{
		{SequenceID: 2, Operation: models.OperationDeposit, AmountDelta: 10_000_000, ResultingBalance: 10_000_000},
		{SequenceID: 1, Operation: models.OperationInitialize},
	}, nil).Once()

	m := dashboardModel(t, client, &fakeStore{}, 10_000_000, true)
	m, cmd := update(t, m, key(keyReceipts))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	require.Equal(t, receiptsScreen, m.state)
	require.Len(t, m.receiptList.Items(), 2)
	first, ok := m.receiptList.Items()[0].(receiptItem)
	require.True(t, ok)
	assert.Equal(t, "#2 Пополнение +0.01 SOL", first.Title())

	m, _ = update(t, m, key(keyEsc))
	assert.Equal(t, dashboardScreen, m.state)
}

func TestLogout(t *testing.T) {
	store := &fakeStore{data: session.Data{ServerURL: "https://vault.example", Username: "alice", Token: "jwt"}}
	m := dashboardModel(t, new(MockAPIClient), store, 0, true)

	m, _ = update(t, m, key(keyLogout))
	assert.Equal(t, loginScreen, m.state)
	assert.Nil(t, m.apiClient)
	assert.Empty(t, store.data.Token)
}

func TestGlobalMessages(t *testing.T) {
	m := newTestModel(t, new(MockAPIClient), &fakeStore{})

	_, cmd := update(t, m, key(keyCtrlC))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m.status = "статус"
	m, _ = update(t, m, clearStatusMsg{})
	assert.Empty(t, m.status)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Equal(t, 100-4-inputOffset, m.amountInput.Width)

	m.debugMode = true
	m.version = "v1.2.3"
	assert.Contains(t, m.View(), "[unlock v1.2.3]")
	assert.Equal(t, "unknown(42)", screenState(42).String())
}
