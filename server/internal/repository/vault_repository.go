package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
)

// VaultRepository хранит снимки хранилищ, из которых движок восстанавливается при старте.
type VaultRepository interface {
	// SaveSnapshot записывает состояние хранилища, актуальное на момент seq.
	// Запись применяется, только если она новее сохраненной; иначе возвращается false.
	SaveSnapshot(ctx context.Context, record models.VaultRecord, seq uint64) (bool, error)
	// ListOpenVaults возвращает все открытые хранилища.
	ListOpenVaults(ctx context.Context) ([]models.VaultRecord, error)
	// MaxSequence возвращает наибольший sequence id, известный базе.
	MaxSequence(ctx context.Context) (uint64, error)
}

// postgresVaultRepository реализует VaultRepository для PostgreSQL.
type postgresVaultRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewPostgresVaultRepository создает новый экземпляр репозитория хранилищ.
func NewPostgresVaultRepository(db *sqlx.DB, log *zap.Logger) VaultRepository {
	return &postgresVaultRepository{db: db, log: log}
}

// Закрытое хранилище остается в таблице с is_open=false, чтобы запоздавшая
// запись более старой операции не воскресила его.
const saveSnapshotQuery = `INSERT INTO vaults (owner, balance, is_open, last_sequence)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (owner) DO UPDATE
	SET balance = EXCLUDED.balance,
	    is_open = EXCLUDED.is_open,
	    last_sequence = EXCLUDED.last_sequence,
	    updated_at = NOW()
	WHERE vaults.last_sequence < EXCLUDED.last_sequence`

func (r *postgresVaultRepository) SaveSnapshot(
	ctx context.Context,
	record models.VaultRecord,
	seq uint64,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, saveSnapshotQuery, record.Owner, record.Balance, record.Exists, seq)
	if err != nil {
		r.log.Error("[VaultRepo] Ошибка сохранения снимка хранилища",
			zap.String("owner", record.Owner), zap.Uint64("seq", seq), zap.Error(err))
		return false, fmt.Errorf("ошибка выполнения запроса на сохранение снимка: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения количества измененных строк: %w", err)
	}
	if affected == 0 {
		r.log.Debug("[VaultRepo] Снимок устарел и пропущен",
			zap.String("owner", record.Owner), zap.Uint64("seq", seq))
		return false, nil
	}
	return true, nil
}

func (r *postgresVaultRepository) ListOpenVaults(ctx context.Context) ([]models.VaultRecord, error) {
	query := `SELECT owner, balance, is_open FROM vaults WHERE is_open ORDER BY owner`

	var records []models.VaultRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		r.log.Error("[VaultRepo] Ошибка получения открытых хранилищ", zap.Error(err))
		return nil, fmt.Errorf("ошибка выполнения запроса на получение хранилищ: %w", err)
	}
	r.log.Info("[VaultRepo] Загружены открытые хранилища", zap.Int("count", len(records)))
	return records, nil
}

func (r *postgresVaultRepository) MaxSequence(ctx context.Context) (uint64, error) {
	query := `SELECT GREATEST(
		COALESCE((SELECT MAX(sequence_id) FROM vault_receipts), 0),
		COALESCE((SELECT MAX(last_sequence) FROM vaults), 0))`

	var seq int64
	if err := r.db.GetContext(ctx, &seq, query); err != nil {
		r.log.Error("[VaultRepo] Ошибка получения последнего sequence id", zap.Error(err))
		return 0, fmt.Errorf("ошибка выполнения запроса на получение sequence id: %w", err)
	}
	if seq < 0 {
		return 0, fmt.Errorf("некорректный sequence id в базе: %d", seq)
	}
	return uint64(seq), nil
}
