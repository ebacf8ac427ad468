package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
)

// ReceiptRepository - журнал квитанций.
type ReceiptRepository interface {
	AppendReceipt(ctx context.Context, receipt models.Receipt) error
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.Receipt, error)
	// ListLifecycle возвращает квитанции последнего жизненного цикла хранилища,
	// от последней инициализации до untilSequence включительно, по возрастанию.
	ListLifecycle(ctx context.Context, owner string, untilSequence uint64) ([]models.Receipt, error)
}

type postgresReceiptRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewPostgresReceiptRepository создает новый экземпляр журнала квитанций.
func NewPostgresReceiptRepository(db *sqlx.DB, log *zap.Logger) ReceiptRepository {
	return &postgresReceiptRepository{db: db, log: log}
}

const receiptColumns = `sequence_id, owner, operation, amount_delta, resulting_balance, returned_amount, created_at`

// AppendReceipt добавляет квитанцию в журнал. Повторная запись той же квитанции игнорируется.
func (r *postgresReceiptRepository) AppendReceipt(ctx context.Context, receipt models.Receipt) error {
	query := `INSERT INTO vault_receipts (` + receiptColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (sequence_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		receipt.SequenceID, receipt.Owner, receipt.Operation, receipt.AmountDelta,
		receipt.ResultingBalance, receipt.ReturnedAmount, receipt.CreatedAt,
	)
	if err != nil {
		r.log.Error("[ReceiptRepo] Ошибка записи квитанции",
			zap.Uint64("seq", receipt.SequenceID), zap.String("owner", receipt.Owner), zap.Error(err))
		return fmt.Errorf("ошибка выполнения запроса на запись квитанции: %w", err)
	}
	return nil
}

// ListByOwner возвращает квитанции владельца с пагинацией, сначала новые.
func (r *postgresReceiptRepository) ListByOwner(
	ctx context.Context,
	owner string,
	limit,
	offset int,
) ([]models.Receipt, error) {
	query := `SELECT ` + receiptColumns + `
	          FROM vault_receipts
	          WHERE owner=$1
	          ORDER BY sequence_id DESC
	          LIMIT $2 OFFSET $3`

	receipts := make([]models.Receipt, 0, limit)
	if err := r.db.SelectContext(ctx, &receipts, query, owner, limit, offset); err != nil {
		r.log.Error("[ReceiptRepo] Ошибка получения списка квитанций", zap.String("owner", owner), zap.Error(err))
		return nil, fmt.Errorf("ошибка выполнения запроса на получение списка квитанций: %w", err)
	}
	return receipts, nil
}

func (r *postgresReceiptRepository) ListLifecycle(
	ctx context.Context,
	owner string,
	untilSequence uint64,
) ([]models.Receipt, error) {
	query := `SELECT ` + receiptColumns + `
	          FROM vault_receipts
	          WHERE owner=$1 AND sequence_id <= $2 AND sequence_id >= COALESCE(
	              (SELECT MAX(sequence_id) FROM vault_receipts
	               WHERE owner=$1 AND operation='initialize' AND sequence_id <= $2), 0)
	          ORDER BY sequence_id ASC`

	var receipts []models.Receipt
	if err := r.db.SelectContext(ctx, &receipts, query, owner, untilSequence); err != nil {
		r.log.Error("[ReceiptRepo] Ошибка получения квитанций для выписки",
			zap.String("owner", owner), zap.Uint64("until", untilSequence), zap.Error(err))
		return nil, fmt.Errorf("ошибка выполнения запроса на получение выписки: %w", err)
	}
	return receipts, nil
}
