package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/client/internal/api"
	"github.com/maynagashev/gophvault/client/internal/session"
)

// Update обрабатывает входящие сообщения.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := m.docStyle.GetFrameSize()
		m.receiptList.SetSize(msg.Width-h, msg.Height-v-helpStatusHeightOffset)
		width := msg.Width - h - inputOffset
		m.passwordInput.Width = width
		m.amountInput.Width = width
		for i := range m.loginInputs {
			m.loginInputs[i].Width = width
		}
		return m, nil

	case sessionOpenedMsg:
		return m.handleSessionOpened(msg)

	case loginSuccessMsg:
		return m.handleLoginSuccess(msg)

	case registerSuccessMsg:
		m.busy = true
		// После регистрации сразу входим с теми же данными
		return m, tea.Batch(
			m.makeLoginCmd(msg.serverURL, msg.username, msg.password),
			m.setStatus("Регистрация успешна, выполняется вход..."),
		)

	case balanceMsg:
		m.busy = false
		m.err = nil
		m.balance = msg.balance
		m.vaultExists = msg.exists
		m.balanceKnown = true
		return m, nil

	case operationMsg:
		return m.handleOperation(msg)

	case closedMsg:
		return m.handleClosed(msg)

	case receiptsMsg:
		m.busy = false
		items := make([]list.Item, len(msg.receipts))
		for i, r := range msg.receipts {
			items[i] = receiptItem{receipt: r}
		}
		cmd := m.receiptList.SetItems(items)
		m.state = receiptsScreen
		return m, cmd

	case errMsg:
		return m.handleErrorMsg(msg)

	case clearStatusMsg:
		m.status = ""
		return m, nil

	case tea.KeyMsg:
		if msg.String() == keyCtrlC {
			return m, tea.Quit
		}
	}

	switch m.state {
	case unlockScreen:
		return m.updateUnlockScreen(msg)
	case loginScreen:
		return m.updateLoginScreen(msg)
	case dashboardScreen:
		return m.updateDashboardScreen(msg)
	case amountScreen:
		return m.updateAmountScreen(msg)
	case confirmCloseScreen:
		return m.updateConfirmCloseScreen(msg)
	case receiptsScreen:
		return m.updateReceiptsScreen(msg)
	}
	return m, nil
}

// handleSessionOpened применяет данные сохраненной сессии.
// Если токен уже есть, экран входа пропускается.
func (m *model) handleSessionOpened(msg sessionOpenedMsg) (tea.Model, tea.Cmd) {
	m.store = msg.store
	m.err = nil
	m.passwordInput.Reset()

	data := m.store.Load()
	if data.ServerURL != "" && m.serverURL == "" {
		m.serverURL = data.ServerURL
	}
	m.loginInputs[loginFieldServer].SetValue(m.serverURL)
	m.loginInputs[loginFieldUsername].SetValue(data.Username)
	m.username = data.Username

	if m.store.ReadOnly() {
		m.log.Warn("[TUI] Сессия открыта только для чтения, другой экземпляр уже запущен")
	}

	if data.Token != "" && m.serverURL != "" {
		m.log.Info("[TUI] Используем сохраненный токен", zap.String("server_url", m.serverURL))
		m.apiClient = m.newAPIClient(m.serverURL)
		m.apiClient.SetAuthToken(data.Token)
		m.state = dashboardScreen
		m.busy = true
		return m, m.makeBalanceCmd()
	}

	return m, m.focusLogin(loginFieldServer)
}

func (m *model) handleLoginSuccess(msg loginSuccessMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.err = nil
	m.serverURL = msg.serverURL
	m.username = msg.username
	m.apiClient.SetAuthToken(msg.token)
	m.loginInputs[loginFieldPassword].Reset()

	status := "Вход выполнен"
	if m.store != nil {
		err := m.store.Save(session.Data{ServerURL: msg.serverURL, Username: msg.username, Token: msg.token})
		switch {
		case errors.Is(err, session.ErrReadOnly):
			status = "Вход выполнен (сессия не сохранена: только чтение)"
		case err != nil:
			m.log.Error("[TUI] Ошибка сохранения сессии", zap.Error(err))
			status = "Вход выполнен, но сессию сохранить не удалось"
		}
	}

	m.state = dashboardScreen
	m.balanceKnown = false
	m.busy = true
	return m, tea.Batch(m.makeBalanceCmd(), m.setStatus(status))
}

func (m *model) handleOperation(msg operationMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.err = nil
	r := msg.receipt
	m.lastReceipt = &r
	m.balance = r.ResultingBalance
	m.vaultExists = true
	m.balanceKnown = true
	m.state = dashboardScreen
	return m, m.setStatus(fmt.Sprintf("%s выполнено, квитанция #%d", operationTitle(r.Operation), r.SequenceID))
}

func (m *model) handleClosed(msg closedMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.err = nil
	r := msg.resp.Receipt
	m.lastReceipt = &r
	m.statementID = msg.resp.StatementID
	m.balance = 0
	m.vaultExists = false
	m.balanceKnown = true
	m.state = dashboardScreen
	return m, m.setStatus("Хранилище закрыто, возвращено " + formatSOL(r.ReturnedAmount))
}

// handleErrorMsg показывает ошибку. Истекший токен возвращает на экран входа.
func (m *model) handleErrorMsg(msg errMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.log.Error("[TUI] Ошибка", zap.String("screen", m.state.String()), zap.Error(msg.err))

	switch {
	case m.state == unlockScreen:
		m.err = msg.err
		m.passwordInput.Reset()
		return m, nil
	case errors.Is(msg.err, api.ErrAuthorization) && m.state != loginScreen:
		if m.store != nil {
			if err := m.store.ClearToken(); err != nil && !errors.Is(err, session.ErrReadOnly) {
				m.log.Error("[TUI] Ошибка очистки токена", zap.Error(err))
			}
		}
		m.err = errors.New("сессия истекла, войдите заново")
		return m, m.focusLogin(loginFieldPassword)
	}

	m.err = msg.err
	return m, nil
}

// setStatus устанавливает статусное сообщение и запускает таймер для его очистки.
func (m *model) setStatus(status string) tea.Cmd {
	m.status = status
	return clearStatusCmd(statusMessageTimeout)
}
