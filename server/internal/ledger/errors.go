package ledger

import "errors"

// Ошибки движка. Все они исправимы вызывающей стороной, состояние
// хранилища при их возврате не меняется.
var (
	ErrEmptyOwner        = errors.New("владелец хранилища не указан")
	ErrAlreadyExists     = errors.New("хранилище уже существует")
	ErrNotFound          = errors.New("хранилище не найдено")
	ErrInvalidAmount     = errors.New("сумма должна быть положительной")
	ErrInsufficientFunds = errors.New("недостаточно средств в хранилище")
	ErrOverflow          = errors.New("переполнение баланса хранилища")
)
