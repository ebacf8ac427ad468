package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/gophvault/client/internal/session"
)

// updateUnlockScreen обрабатывает ввод пароля файла сессии.
func (m *model) updateUnlockScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEnter:
			password := m.passwordInput.Value()
			if password == "" {
				m.err = session.ErrEmptyPassword
				return m, nil
			}
			m.err = nil
			return m, m.openSessionCmd(password)
		case keyEsc:
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.passwordInput, cmd = m.passwordInput.Update(msg)
	return m, cmd
}

// viewUnlockScreen отображает экран ввода пароля файла сессии.
func (m *model) viewUnlockScreen() string {
	var b strings.Builder
	b.WriteString("GophVault\n\n")
	b.WriteString("Файл сессии: " + m.sessionPath + "\n")
	b.WriteString("Если файла нет, он будет создан с этим паролем.\n\n")
	b.WriteString(m.passwordInput.View() + "\n")
	if m.err != nil {
		msg := m.err.Error()
		if errors.Is(m.err, session.ErrUnlock) {
			msg = "неверный пароль или поврежденный файл"
		}
		b.WriteString("\nОшибка: " + msg + "\n")
	}
	b.WriteString("\n(Enter - открыть, Esc - выход)")
	return b.String()
}
