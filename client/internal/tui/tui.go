package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Options - параметры запуска TUI.
type Options struct {
	SessionPath string
	ServerURL   string
	Debug       bool
	Version     string
	Log         *zap.Logger
}

// Init - команда, выполняемая при запуске приложения.
func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

// View отображает текущий экран и строку статуса.
func (m *model) View() string {
	var content string
	switch m.state {
	case unlockScreen:
		content = m.viewUnlockScreen()
	case loginScreen:
		content = m.viewLoginScreen()
	case dashboardScreen:
		content = m.viewDashboardScreen()
	case amountScreen:
		content = m.viewAmountScreen()
	case confirmCloseScreen:
		content = m.viewConfirmCloseScreen()
	case receiptsScreen:
		content = m.viewReceiptsScreen()
	default:
		content = "Неизвестное состояние"
	}

	status := m.status
	if m.busy {
		status = "Выполняется запрос... " + status
	}
	if m.debugMode {
		status += fmt.Sprintf(" [%s %s]", m.state, m.version)
	}
	if status != "" {
		content += "\n\n" + status
	}
	return m.docStyle.Render(content)
}

// Start запускает TUI приложение.
func Start(opts Options) error {
	if opts.SessionPath == "" {
		return errors.New("не указан путь к файлу сессии")
	}
	m := initModel(opts)
	defer func() {
		if m.store != nil {
			if err := m.store.Close(); err != nil {
				m.log.Error("[TUI] Ошибка закрытия сессии", zap.Error(err))
			}
		}
	}()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ошибка при запуске TUI: %w", err)
	}
	return nil
}
