package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/maynagashev/gophvault/models"
	"github.com/maynagashev/gophvault/server/internal/repository"
	"github.com/maynagashev/gophvault/server/internal/token"
)

// AuthService определяет интерфейс для сервиса аутентификации.
type AuthService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error) // Возвращает JWT токен
}

// Убедимся, что authService удовлетворяет интерфейсу AuthService.
var _ AuthService = (*authService)(nil)

type authService struct {
	userRepo repository.UserRepository
	tokens   *token.Manager
	log      *zap.Logger
}

// NewAuthService создает новый экземпляр сервиса аутентификации.
func NewAuthService(userRepo repository.UserRepository, tokens *token.Manager, log *zap.Logger) AuthService {
	return &authService{userRepo: userRepo, tokens: tokens, log: log}
}

// Register регистрирует нового пользователя.
func (s *authService) Register(ctx context.Context, username, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("[AuthService] Ошибка хеширования пароля", zap.String("username", username), zap.Error(err))
		return errors.New("внутренняя ошибка сервера при хешировании пароля")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
	}

	if _, err = s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return ErrUsernameTaken
		}
		s.log.Error("[AuthService] Ошибка репозитория при регистрации", zap.String("username", username), zap.Error(err))
		return errors.New("внутренняя ошибка сервера при создании пользователя")
	}

	s.log.Info("[AuthService] Пользователь зарегистрирован", zap.String("username", username))
	return nil
}

// Login аутентифицирует пользователя и возвращает JWT токен.
func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Одна и та же ошибка для неизвестного пользователя и неверного пароля
			return "", ErrInvalidCredentials
		}
		s.log.Error("[AuthService] Ошибка репозитория при поиске", zap.String("username", username), zap.Error(err))
		return "", errors.New("внутренняя ошибка сервера при поиске пользователя")
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Info("[AuthService] Неверный пароль", zap.String("username", username))
		return "", ErrInvalidCredentials
	}

	signed, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.log.Error("[AuthService] Ошибка генерации JWT", zap.String("username", username), zap.Error(err))
		return "", errors.New("внутренняя ошибка сервера при генерации токена")
	}

	s.log.Info("[AuthService] Пользователь аутентифицирован", zap.String("username", username), zap.Int64("id", user.ID))
	return signed, nil
}

// Ошибки сервиса аутентификации.
var (
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	ErrUsernameTaken      = errors.New("имя пользователя уже занято")
)
