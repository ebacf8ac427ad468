// Package token выпускает и проверяет JWT владельцев хранилищ.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL - время жизни токена по умолчанию.
const DefaultTTL = 24 * time.Hour

const issuer = "gophvault-server"

// Claims - полезная нагрузка токена.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager подписывает и проверяет токены секретом HS256.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager создает Manager. ttl <= 0 означает DefaultTTL.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("секрет JWT не может быть пустым")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// Issue выпускает токен для пользователя.
func (m *Manager) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи JWT: %w", err)
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия токена и возвращает ID пользователя.
func (m *Manager) Parse(tokenString string) (int64, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("невалидный токен: %w", err)
	}
	if !t.Valid || claims.UserID <= 0 {
		return 0, errors.New("невалидный токен")
	}
	return claims.UserID, nil
}
