package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/gophvault/client/internal/api"
)

// openSessionCmd асинхронно открывает файл сессии.
func (m *model) openSessionCmd(password string) tea.Cmd {
	path := m.sessionPath
	open := m.openSession
	return func() tea.Msg {
		store, err := open(path, password)
		if err != nil {
			return errMsg{err: err}
		}
		return sessionOpenedMsg{store: store}
	}
}

// clearStatusCmd возвращает команду, которая отправит clearStatusMsg через delay.
func clearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// --- Команды API --- //

func (m *model) makeLoginCmd(serverURL, username, password string) tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		token, err := client.Login(ctx, username, password)
		if err != nil {
			return errMsg{err: err}
		}
		return loginSuccessMsg{serverURL: serverURL, username: username, token: token}
	}
}

func (m *model) makeRegisterCmd(serverURL, username, password string) tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := client.Register(ctx, username, password); err != nil {
			return errMsg{err: err}
		}
		return registerSuccessMsg{serverURL: serverURL, username: username, password: password}
	}
}

func (m *model) makeBalanceCmd() tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := client.GetBalance(ctx)
		if errors.Is(err, api.ErrVaultNotFound) {
			return balanceMsg{exists: false}
		}
		if err != nil {
			return errMsg{err: err}
		}
		return balanceMsg{balance: resp.Balance, exists: true}
	}
}

func (m *model) makeInitializeCmd() tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		receipt, err := client.Initialize(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return operationMsg{receipt: *receipt}
	}
}

// makeAmountCmd выполняет пополнение или снятие.
func (m *model) makeAmountCmd(withdraw bool, amount int64) tea.Cmd {
	client := m.apiClient
	op := client.Deposit
	if withdraw {
		op = client.Withdraw
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		receipt, err := op(ctx, amount)
		if err != nil {
			return errMsg{err: err}
		}
		return operationMsg{receipt: *receipt}
	}
}

func (m *model) makeCloseCmd() tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := client.Close(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return closedMsg{resp: *resp}
	}
}

func (m *model) makeReceiptsCmd() tea.Cmd {
	client := m.apiClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		receipts, err := client.ListReceipts(ctx, receiptsPageSize, 0)
		if err != nil {
			return errMsg{err: err}
		}
		return receiptsMsg{receipts: receipts}
	}
}
