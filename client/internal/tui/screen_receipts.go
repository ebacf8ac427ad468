package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// updateReceiptsScreen обрабатывает навигацию по списку квитанций.
func (m *model) updateReceiptsScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc, keyQuit:
			m.state = dashboardScreen
			return m, nil
		case keyRefresh:
			m.busy = true
			return m, m.makeReceiptsCmd()
		}
	}

	var cmd tea.Cmd
	m.receiptList, cmd = m.receiptList.Update(msg)
	return m, cmd
}

func (m *model) viewReceiptsScreen() string {
	if len(m.receiptList.Items()) == 0 {
		return "Квитанций пока нет.\n\n(Esc - назад)"
	}
	return m.receiptList.View() + "\n(↑/↓ - навигация, r - обновить, Esc - назад)"
}
