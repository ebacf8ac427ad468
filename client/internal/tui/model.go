package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/client/internal/api"
	"github.com/maynagashev/gophvault/client/internal/session"
	"github.com/maynagashev/gophvault/models"
)

// Состояния (экраны) приложения.
type screenState int

const (
	unlockScreen       screenState = iota // Ввод пароля файла сессии
	loginScreen                           // Адрес сервера, имя и пароль
	dashboardScreen                       // Баланс и действия с хранилищем
	amountScreen                          // Ввод суммы пополнения или снятия
	confirmCloseScreen                    // Подтверждение закрытия хранилища
	receiptsScreen                        // Список квитанций
)

func (s screenState) String() string {
	switch s {
	case unlockScreen:
		return "unlock"
	case loginScreen:
		return "login"
	case dashboardScreen:
		return "dashboard"
	case amountScreen:
		return "amount"
	case confirmCloseScreen:
		return "confirm-close"
	case receiptsScreen:
		return "receipts"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Поля экрана входа.
const (
	loginFieldServer = iota
	loginFieldUsername
	loginFieldPassword
	numLoginFields
)

// Константы для TUI.
const (
	defaultListWidth       = 80
	defaultListHeight      = 20
	inputOffset            = 4
	helpStatusHeightOffset = 2
	statusMessageTimeout   = 4 * time.Second
	requestTimeout         = 15 * time.Second
	receiptsPageSize       = 50

	keyEnter    = "enter"
	keyQuit     = "q"
	keyEsc      = "esc"
	keyTab      = "tab"
	keyShiftTab = "shift+tab"
	keyUp       = "up"
	keyDown     = "down"
	keyCtrlC    = "ctrl+c"
	keyRegister = "ctrl+r"
	keyRefresh  = "r"
	keyInit     = "i"
	keyDeposit  = "d"
	keyWithdraw = "w"
	keyClose    = "c"
	keyReceipts = "l"
	keyLogout   = "o"
	keyYes      = "y"
	keyNo       = "n"
)

// sessionStore - хранилище данных входа. Реализуется session.Keyring.
type sessionStore interface {
	Load() session.Data
	Save(d session.Data) error
	ClearToken() error
	ReadOnly() bool
	Close() error
}

// receiptItem - элемент списка квитанций.
type receiptItem struct {
	receipt models.Receipt
}

func (i receiptItem) Title() string {
	return fmt.Sprintf("#%d %s %s", i.receipt.SequenceID, operationTitle(i.receipt.Operation),
		formatDelta(i.receipt.AmountDelta))
}

func (i receiptItem) Description() string {
	desc := "баланс " + formatSOL(i.receipt.ResultingBalance)
	if i.receipt.ReturnedAmount > 0 {
		desc += ", возвращено " + formatSOL(i.receipt.ReturnedAmount)
	}
	if !i.receipt.CreatedAt.IsZero() {
		desc += " | " + i.receipt.CreatedAt.Local().Format("2006-01-02 15:04:05")
	}
	return desc
}

func (i receiptItem) FilterValue() string { return string(i.receipt.Operation) }

func operationTitle(op models.Operation) string {
	switch op {
	case models.OperationInitialize:
		return "Создание"
	case models.OperationDeposit:
		return "Пополнение"
	case models.OperationWithdraw:
		return "Снятие"
	case models.OperationClose:
		return "Закрытие"
	default:
		return string(op)
	}
}

// --- Сообщения --- //

type sessionOpenedMsg struct {
	store sessionStore
}

type loginSuccessMsg struct {
	serverURL string
	username  string
	token     string
}

type registerSuccessMsg struct {
	serverURL string
	username  string
	password  string
}

// balanceMsg - результат запроса баланса. exists=false, если хранилища нет.
type balanceMsg struct {
	balance int64
	exists  bool
}

type operationMsg struct {
	receipt models.Receipt
}

type closedMsg struct {
	resp models.CloseResponse
}

type receiptsMsg struct {
	receipts []models.Receipt
}

type errMsg struct {
	err error
}

type clearStatusMsg struct{}

// model представляет состояние TUI приложения.
type model struct {
	state       screenState
	sessionPath string
	log         *zap.Logger
	debugMode   bool
	version     string

	// Подменяются в тестах
	openSession  func(path, password string) (sessionStore, error)
	newAPIClient func(serverURL string) api.Client

	store     sessionStore
	apiClient api.Client
	serverURL string
	username  string

	passwordInput textinput.Model   // Пароль файла сессии
	loginInputs   []textinput.Model // URL сервера, имя пользователя, пароль
	loginFocus    int
	amountInput   textinput.Model
	receiptList   list.Model

	// Состояние хранилища на сервере
	balance      int64
	vaultExists  bool
	balanceKnown bool
	lastReceipt  *models.Receipt
	statementID  string

	withdrawMode bool   // amountScreen: снятие вместо пополнения
	busy         bool   // Запрос к серверу в процессе
	status       string // Статус внизу экрана
	err          error  // Последняя ошибка для отображения

	docStyle lipgloss.Style
}

func newTextInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = defaultListWidth - inputOffset
	return ti
}

// initModel создает начальную модель.
func initModel(opts Options) *model {
	passwordInput := newTextInput("Пароль файла сессии", 256)
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.EchoCharacter = '*'
	passwordInput.Focus()

	server := newTextInput("https://localhost:8443", 256)
	server.SetValue(opts.ServerURL)
	username := newTextInput("Имя пользователя", 64)
	password := newTextInput("Пароль", 128)
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	amount := newTextInput("Сумма в SOL, например 0.01", 32)

	receiptList := list.New([]list.Item{}, list.NewDefaultDelegate(), defaultListWidth, defaultListHeight)
	receiptList.Title = "Квитанции"
	receiptList.SetShowHelp(false)
	receiptList.SetFilteringEnabled(false)

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &model{
		state:       unlockScreen,
		sessionPath: opts.SessionPath,
		log:         log,
		debugMode:   opts.Debug,
		version:     opts.Version,
		serverURL:   opts.ServerURL,
		openSession: func(path, pw string) (sessionStore, error) {
			return session.Open(path, pw, log)
		},
		newAPIClient: func(serverURL string) api.Client {
			return api.NewHTTPClient(serverURL, log)
		},
		passwordInput: passwordInput,
		loginInputs:   []textinput.Model{server, username, password},
		amountInput:   amount,
		receiptList:   receiptList,
		docStyle:      lipgloss.NewStyle().Margin(1, 2),
	}
}
