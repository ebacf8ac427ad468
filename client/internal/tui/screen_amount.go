package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// updateAmountScreen обрабатывает ввод суммы пополнения или снятия.
func (m *model) updateAmountScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.amountInput.Blur()
			m.err = nil
			m.state = dashboardScreen
			return m, nil
		case keyEnter:
			if m.busy {
				return m, nil
			}
			amount, err := parseSOL(m.amountInput.Value())
			if err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.busy = true
			m.amountInput.Blur()
			return m, m.makeAmountCmd(m.withdrawMode, amount)
		}
	}

	var cmd tea.Cmd
	m.amountInput, cmd = m.amountInput.Update(msg)
	return m, cmd
}

// viewAmountScreen отображает ввод суммы.
func (m *model) viewAmountScreen() string {
	var b strings.Builder
	if m.withdrawMode {
		b.WriteString("Снятие средств\n\n")
	} else {
		b.WriteString("Пополнение хранилища\n\n")
	}
	if m.balanceKnown && m.vaultExists {
		b.WriteString("Баланс: " + formatSOL(m.balance) + "\n\n")
	}
	b.WriteString(m.amountInput.View() + "\n")
	if m.err != nil {
		b.WriteString("\nОшибка: " + m.err.Error() + "\n")
	}
	b.WriteString("\n(Enter - подтвердить, Esc - отмена)")
	return b.String()
}

// updateConfirmCloseScreen ждет подтверждения закрытия хранилища.
func (m *model) updateConfirmCloseScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case keyYes:
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.makeCloseCmd()
	case keyNo, keyEsc:
		m.state = dashboardScreen
	}
	return m, nil
}

func (m *model) viewConfirmCloseScreen() string {
	var b strings.Builder
	b.WriteString("Закрыть хранилище?\n\n")
	if m.balanceKnown {
		b.WriteString("Весь остаток (" + formatSOL(m.balance) + ") будет возвращен.\n")
	}
	if m.err != nil {
		b.WriteString("\nОшибка: " + m.err.Error() + "\n")
	}
	b.WriteString("\n(y - да, n - нет)")
	return b.String()
}
