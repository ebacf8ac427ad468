package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// updateDashboardScreen обрабатывает действия над хранилищем.
func (m *model) updateDashboardScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	key := keyMsg.String()
	if key == keyQuit {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch key {
	case keyRefresh:
		m.busy = true
		return m, m.makeBalanceCmd()
	case keyInit:
		if m.balanceKnown && m.vaultExists {
			return m, m.setStatus("Хранилище уже создано")
		}
		m.busy = true
		return m, m.makeInitializeCmd()
	case keyDeposit, keyWithdraw:
		if m.balanceKnown && !m.vaultExists {
			return m, m.setStatus("Сначала создайте хранилище (i)")
		}
		m.withdrawMode = key == keyWithdraw
		m.amountInput.Reset()
		m.err = nil
		m.state = amountScreen
		return m, m.amountInput.Focus()
	case keyClose:
		if m.balanceKnown && !m.vaultExists {
			return m, m.setStatus("Хранилище не создано")
		}
		m.state = confirmCloseScreen
		return m, nil
	case keyReceipts:
		m.busy = true
		return m, m.makeReceiptsCmd()
	case keyLogout:
		return m.logout()
	}
	return m, nil
}

// logout удаляет сохраненный токен и возвращает на экран входа.
func (m *model) logout() (tea.Model, tea.Cmd) {
	if m.store != nil && !m.store.ReadOnly() {
		if err := m.store.ClearToken(); err != nil {
			m.log.Error("[TUI] Ошибка очистки токена", zap.Error(err))
		}
	}
	m.apiClient = nil
	m.balanceKnown = false
	m.lastReceipt = nil
	m.statementID = ""
	m.err = nil
	return m, tea.Batch(m.focusLogin(loginFieldPassword), m.setStatus("Вы вышли из учетной записи"))
}

// viewDashboardScreen отображает баланс и доступные действия.
func (m *model) viewDashboardScreen() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GophVault: %s @ %s\n\n", m.username, m.serverURL)

	switch {
	case !m.balanceKnown:
		b.WriteString("Баланс: загрузка...\n")
	case !m.vaultExists:
		b.WriteString("Хранилище не создано. Нажмите i, чтобы создать.\n")
	default:
		b.WriteString("Баланс: " + formatSOL(m.balance) + "\n")
	}

	if m.lastReceipt != nil {
		b.WriteString("\nПоследняя квитанция:\n")
		b.WriteString("  " + receiptItem{receipt: *m.lastReceipt}.Title() + "\n")
		b.WriteString("  " + receiptItem{receipt: *m.lastReceipt}.Description() + "\n")
	}
	if m.statementID != "" {
		b.WriteString("Выписка: " + m.statementID + "\n")
	}
	if m.err != nil {
		b.WriteString("\nОшибка: " + m.err.Error() + "\n")
	}

	b.WriteString("\n(r - обновить, i - создать, d - пополнить, w - снять, c - закрыть,\n")
	b.WriteString(" l - квитанции, o - выйти из учетной записи, q - выход)")
	return b.String()
}
