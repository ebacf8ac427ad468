package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
	"github.com/maynagashev/gophvault/server/internal/ledger"
	"github.com/maynagashev/gophvault/server/internal/repository"
	"github.com/maynagashev/gophvault/server/internal/storage"
)

// persistTimeout ограничивает запись в журнал после выполнения операции.
const persistTimeout = 5 * time.Second

// VaultService определяет операции над хранилищем пользователя.
// Владелец хранилища - аутентифицированный пользователь.
type VaultService interface {
	Initialize(ctx context.Context, userID int64) (models.Receipt, error)
	Deposit(ctx context.Context, userID, amount int64) (models.Receipt, error)
	Withdraw(ctx context.Context, userID, amount int64) (models.Receipt, error)
	Close(ctx context.Context, userID int64) (models.CloseResponse, error)
	GetBalance(ctx context.Context, userID int64) (models.BalanceResponse, error)
	ListReceipts(ctx context.Context, userID int64, limit, offset int) ([]models.Receipt, error)
	DownloadStatement(ctx context.Context, userID int64, statementID string) (io.ReadCloser, error)
}

var _ VaultService = (*Vaults)(nil)

// Vaults реализует VaultService: движок учета, журнал в PostgreSQL и архив выписок.
type Vaults struct {
	engine      *ledger.Engine
	vaultRepo   repository.VaultRepository
	receiptRepo repository.ReceiptRepository
	files       storage.FileStorage
	log         *zap.Logger

	// Квитанции владельца попадают в журнал в порядке sequence id
	locks ownerLocks
}

// NewVaultService создает сервис хранилищ поверх движка учета.
func NewVaultService(
	engine *ledger.Engine,
	vaultRepo repository.VaultRepository,
	receiptRepo repository.ReceiptRepository,
	files storage.FileStorage,
	log *zap.Logger,
) *Vaults {
	return &Vaults{
		engine:      engine,
		vaultRepo:   vaultRepo,
		receiptRepo: receiptRepo,
		files:       files,
		log:         log,
	}
}

func ownerKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func statementKey(owner, statementID string) string {
	return fmt.Sprintf("statements/%s/%s.json", owner, statementID)
}

// Restore загружает открытые хранилища из базы в движок.
func (s *Vaults) Restore(ctx context.Context) error {
	records, err := s.vaultRepo.ListOpenVaults(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки хранилищ: %w", err)
	}
	seq, err := s.vaultRepo.MaxSequence(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки sequence id: %w", err)
	}
	if err = s.engine.Restore(records, seq); err != nil {
		return fmt.Errorf("ошибка восстановления движка: %w", err)
	}
	s.log.Info("[VaultService] Состояние восстановлено",
		zap.Int("vaults", len(records)), zap.Uint64("last_sequence", seq))
	return nil
}

// persist записывает квитанцию и снимок хранилища. Движок уже применил операцию,
// поэтому ошибки записи только логируются: следующий снимок владельца их исправит.
func (s *Vaults) persist(ctx context.Context, r models.Receipt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.receiptRepo.AppendReceipt(ctx, r); err != nil {
		s.log.Error("[VaultService] Квитанция не записана в журнал",
			zap.Uint64("seq", r.SequenceID), zap.String("owner", r.Owner), zap.Error(err))
	}

	record := models.VaultRecord{
		Owner:   r.Owner,
		Balance: r.ResultingBalance,
		Exists:  r.Operation != models.OperationClose,
	}
	if _, err := s.vaultRepo.SaveSnapshot(ctx, record, r.SequenceID); err != nil {
		s.log.Error("[VaultService] Снимок хранилища не сохранен",
			zap.Uint64("seq", r.SequenceID), zap.String("owner", r.Owner), zap.Error(err))
	}
}

func (s *Vaults) apply(
	ctx context.Context,
	userID int64,
	op models.Operation,
	fn func(owner string) (models.Receipt, error),
) (models.Receipt, error) {
	owner := ownerKey(userID)
	unlock := s.locks.lock(owner)
	defer unlock()
	return s.applyLocked(ctx, owner, op, fn)
}

// applyLocked выполняет операцию движка и записывает ее результат.
// Вызывается под блокировкой владельца.
func (s *Vaults) applyLocked(
	ctx context.Context,
	owner string,
	op models.Operation,
	fn func(owner string) (models.Receipt, error),
) (models.Receipt, error) {
	r, err := fn(owner)
	if err != nil {
		s.log.Info("[VaultService] Операция отклонена",
			zap.String("op", string(op)), zap.String("owner", owner), zap.Error(err))
		return models.Receipt{}, err
	}
	s.persist(ctx, r)
	s.log.Info("[VaultService] Операция выполнена",
		zap.String("op", string(op)), zap.String("owner", owner),
		zap.Uint64("seq", r.SequenceID), zap.Int64("balance", r.ResultingBalance))
	return r, nil
}

func (s *Vaults) Initialize(ctx context.Context, userID int64) (models.Receipt, error) {
	return s.apply(ctx, userID, models.OperationInitialize, s.engine.Initialize)
}

func (s *Vaults) Deposit(ctx context.Context, userID, amount int64) (models.Receipt, error) {
	return s.apply(ctx, userID, models.OperationDeposit, func(owner string) (models.Receipt, error) {
		return s.engine.Deposit(owner, amount)
	})
}

func (s *Vaults) Withdraw(ctx context.Context, userID, amount int64) (models.Receipt, error) {
	return s.apply(ctx, userID, models.OperationWithdraw, func(owner string) (models.Receipt, error) {
		return s.engine.Withdraw(owner, amount)
	})
}

// Close закрывает хранилище и архивирует выписку по нему.
// Если выписку сохранить не удалось, хранилище все равно закрыто, а StatementID пуст.
// Все предыдущие квитанции владельца к этому моменту уже записаны в журнал.
func (s *Vaults) Close(ctx context.Context, userID int64) (models.CloseResponse, error) {
	owner := ownerKey(userID)
	unlock := s.locks.lock(owner)
	defer unlock()

	r, err := s.applyLocked(ctx, owner, models.OperationClose, s.engine.Close)
	if err != nil {
		return models.CloseResponse{}, err
	}

	resp := models.CloseResponse{Receipt: r}
	statementID, err := s.archiveStatement(ctx, r)
	if err != nil {
		s.log.Error("[VaultService] Выписка не сохранена",
			zap.String("owner", r.Owner), zap.Uint64("seq", r.SequenceID), zap.Error(err))
		return resp, nil
	}
	resp.StatementID = statementID
	return resp, nil
}

func (s *Vaults) archiveStatement(ctx context.Context, closeReceipt models.Receipt) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	receipts, err := s.receiptRepo.ListLifecycle(ctx, closeReceipt.Owner, closeReceipt.SequenceID)
	if err != nil {
		return "", err
	}
	// Квитанция закрытия могла не попасть в журнал
	if len(receipts) == 0 || receipts[len(receipts)-1].SequenceID != closeReceipt.SequenceID {
		receipts = append(receipts, closeReceipt)
	}

	st := models.Statement{
		ID:       uuid.NewString(),
		Owner:    closeReceipt.Owner,
		ClosedAt: closeReceipt.CreatedAt,
		Returned: closeReceipt.ReturnedAmount,
		Receipts: receipts,
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("ошибка кодирования выписки: %w", err)
	}

	key := statementKey(st.Owner, st.ID)
	if err = s.files.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	s.log.Info("[VaultService] Выписка сохранена", zap.String("owner", st.Owner), zap.String("key", key))
	return st.ID, nil
}

func (s *Vaults) GetBalance(_ context.Context, userID int64) (models.BalanceResponse, error) {
	owner := ownerKey(userID)
	balance, err := s.engine.Balance(owner)
	if err != nil {
		return models.BalanceResponse{}, err
	}
	return models.BalanceResponse{Owner: owner, Balance: balance}, nil
}

func (s *Vaults) ListReceipts(ctx context.Context, userID int64, limit, offset int) ([]models.Receipt, error) {
	receipts, err := s.receiptRepo.ListByOwner(ctx, ownerKey(userID), limit, offset)
	if err != nil {
		return nil, errors.New("внутренняя ошибка сервера при получении квитанций")
	}
	return receipts, nil
}

func (s *Vaults) DownloadStatement(
	ctx context.Context,
	userID int64,
	statementID string,
) (io.ReadCloser, error) {
	// Идентификатор попадает в ключ объекта, поэтому принимаем только UUID
	id, err := uuid.Parse(statementID)
	if err != nil {
		return nil, ErrStatementNotFound
	}
	rc, err := s.files.DownloadFile(ctx, statementKey(ownerKey(userID), id.String()))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrStatementNotFound
		}
		return nil, fmt.Errorf("ошибка получения выписки: %w", err)
	}
	return rc, nil
}

// Ошибки сервиса хранилищ. Ошибки движка пробрасываются как есть,
// здесь они доступны под именами сервисного слоя.
var (
	ErrVaultExists       = ledger.ErrAlreadyExists
	ErrVaultNotFound     = ledger.ErrNotFound
	ErrInvalidAmount     = ledger.ErrInvalidAmount
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrOverflow          = ledger.ErrOverflow
	ErrStatementNotFound = errors.New("выписка не найдена")
)
