package models

import "time"

// Operation - тип операции над хранилищем.
type Operation string

// Поддерживаемые операции.
const (
	OperationInitialize Operation = "initialize"
	OperationDeposit    Operation = "deposit"
	OperationWithdraw   Operation = "withdraw"
	OperationClose      Operation = "close"
)

// VaultRecord - запись о балансе одного владельца.
// Balance хранится в минимальных единицах (lamports).
type VaultRecord struct {
	Owner   string `db:"owner" json:"owner"`
	Balance int64  `db:"balance" json:"balance"`
	Exists  bool   `db:"is_open" json:"exists"`
}

// Receipt - квитанция о выполненной операции.
// SequenceID строго возрастает в пределах всего движка и задает
// полный порядок операций.
type Receipt struct {
	SequenceID       uint64    `db:"sequence_id" json:"sequence_id"`
	Owner            string    `db:"owner" json:"owner"`
	Operation        Operation `db:"operation" json:"operation"`
	AmountDelta      int64     `db:"amount_delta" json:"amount_delta"`
	ResultingBalance int64     `db:"resulting_balance" json:"resulting_balance"`
	// ReturnedAmount - сумма, возвращенная владельцу при закрытии (0 для остальных операций).
	ReturnedAmount int64     `db:"returned_amount" json:"returned_amount"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AmountRequest - тело запросов deposit/withdraw.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// BalanceResponse - ответ на запрос текущего баланса.
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// CloseResponse - ответ на закрытие хранилища.
type CloseResponse struct {
	Receipt     Receipt `json:"receipt"`
	StatementID string  `json:"statement_id,omitempty"`
}

// Statement - выписка по хранилищу, архивируемая при закрытии.
type Statement struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	ClosedAt time.Time `json:"closed_at"`
	Returned int64     `json:"returned"`
	Receipts []Receipt `json:"receipts"`
}
