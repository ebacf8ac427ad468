package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var errEmptyCredentials = errors.New("заполните адрес сервера, имя пользователя и пароль")

// focusLogin переключает экран входа на поле field.
func (m *model) focusLogin(field int) tea.Cmd {
	m.state = loginScreen
	m.loginFocus = field
	for i := range m.loginInputs {
		m.loginInputs[i].Blur()
	}
	return m.loginInputs[field].Focus()
}

// credentials возвращает введенные данные или ошибку, если что-то не заполнено.
func (m *model) credentials() (string, string, string, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(m.loginInputs[loginFieldServer].Value()), "/")
	username := strings.TrimSpace(m.loginInputs[loginFieldUsername].Value())
	password := m.loginInputs[loginFieldPassword].Value()
	if serverURL == "" || username == "" || password == "" {
		return "", "", "", errEmptyCredentials
	}
	return serverURL, username, password, nil
}

// updateLoginScreen обрабатывает ввод данных для входа и регистрации.
func (m *model) updateLoginScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, m.updateLoginInputs(msg)
	}

	switch keyMsg.String() {
	case keyTab, keyDown:
		return m, m.focusLogin((m.loginFocus + 1) % numLoginFields)
	case keyShiftTab, keyUp:
		return m, m.focusLogin((m.loginFocus + numLoginFields - 1) % numLoginFields)
	case keyEsc:
		return m, tea.Quit
	case keyEnter:
		if m.loginFocus < numLoginFields-1 {
			return m, m.focusLogin(m.loginFocus + 1)
		}
		return m, m.submitCredentials(false)
	case keyRegister:
		return m, m.submitCredentials(true)
	}

	return m, m.updateLoginInputs(msg)
}

// submitCredentials запускает вход или регистрацию.
func (m *model) submitCredentials(register bool) tea.Cmd {
	if m.busy {
		return nil
	}
	serverURL, username, password, err := m.credentials()
	if err != nil {
		m.err = err
		return nil
	}
	m.err = nil
	m.busy = true
	m.apiClient = m.newAPIClient(serverURL)
	if register {
		return tea.Batch(m.makeRegisterCmd(serverURL, username, password), m.setStatus("Регистрация..."))
	}
	return tea.Batch(m.makeLoginCmd(serverURL, username, password), m.setStatus("Выполняется вход..."))
}

func (m *model) updateLoginInputs(msg tea.Msg) tea.Cmd {
	cmds := make([]tea.Cmd, len(m.loginInputs))
	for i := range m.loginInputs {
		m.loginInputs[i], cmds[i] = m.loginInputs[i].Update(msg)
	}
	return tea.Batch(cmds...)
}

// viewLoginScreen отображает экран входа.
func (m *model) viewLoginScreen() string {
	labels := []string{"Сервер", "Имя пользователя", "Пароль"}
	var b strings.Builder
	b.WriteString("Вход в GophVault\n\n")
	for i, input := range m.loginInputs {
		b.WriteString(labels[i] + ":\n")
		b.WriteString(input.View() + "\n\n")
	}
	if m.err != nil {
		b.WriteString("Ошибка: " + m.err.Error() + "\n\n")
	}
	b.WriteString("(Tab - следующее поле, Enter - войти, Ctrl+R - зарегистрироваться, Esc - выход)")
	return b.String()
}
