package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/models"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

// UserRepository определяет методы для работы с данными пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// postgresUserRepository реализует UserRepository для PostgreSQL.
type postgresUserRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewPostgresUserRepository создает новый экземпляр репозитория пользователей для PostgreSQL.
func NewPostgresUserRepository(db *sqlx.DB, log *zap.Logger) UserRepository {
	return &postgresUserRepository{db: db, log: log}
}

// CreateUser создает нового пользователя и возвращает его ID.
func (r *postgresUserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`
	var userID int64

	err := r.db.QueryRowxContext(ctx, query, user.Username, user.PasswordHash).Scan(&userID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			r.log.Info("[UserRepo] Имя пользователя уже занято", zap.String("username", user.Username))
			return 0, ErrUsernameTaken
		}
		r.log.Error("[UserRepo] Непредвиденная ошибка при создании пользователя",
			zap.String("username", user.Username), zap.Error(err))
		return 0, fmt.Errorf("ошибка выполнения запроса на создание пользователя: %w", err)
	}

	r.log.Info("[UserRepo] Пользователь создан", zap.String("username", user.Username), zap.Int64("id", userID))
	return userID, nil
}

// GetUserByUsername находит пользователя по имени.
func (r *postgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username=$1`
	var user models.User

	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debug("[UserRepo] Пользователь не найден", zap.String("username", username))
			return nil, ErrUserNotFound
		}
		r.log.Error("[UserRepo] Ошибка при поиске пользователя", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("ошибка выполнения запроса на получение пользователя: %w", err)
	}

	return &user, nil
}

// Ошибки репозитория пользователей.
var (
	ErrUserNotFound  = errors.New("пользователь не найден")
	ErrUsernameTaken = errors.New("имя пользователя уже занято")
)
