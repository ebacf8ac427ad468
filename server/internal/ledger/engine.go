// Package ledger содержит движок учета хранилищ: по одной записи о балансе
// на владельца, атомарные операции initialize/deposit/withdraw/close и
// сквозной счетчик квитанций.
package ledger

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maynagashev/gophvault/models"
)

// DefaultShards - количество сегментов блокировок по умолчанию.
const DefaultShards = 64

// shard владеет частью записей. Операции над разными сегментами
// не блокируют друг друга.
type shard struct {
	mu     sync.RWMutex
	vaults map[string]int64 // owner -> balance
}

// Engine - движок учета хранилищ. Безопасен для конкурентного использования.
// Владельцы распределяются по сегментам хешем ключа: операции владельцев
// из одного сегмента выполняются последовательно друг за другом.
type Engine struct {
	shards []*shard
	seq    atomic.Uint64
	now    func() time.Time
}

// New создает пустой движок с указанным количеством сегментов блокировок.
// Значение <= 0 означает DefaultShards.
func New(shardCount int) *Engine {
	if shardCount <= 0 {
		shardCount = DefaultShards
	}
	e := &Engine{
		shards: make([]*shard, shardCount),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for i := range e.shards {
		e.shards[i] = &shard{vaults: make(map[string]int64)}
	}
	return e
}

func (e *Engine) shardFor(owner string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

// receipt выдает квитанцию. Вызывается только под блокировкой сегмента владельца,
// поэтому порядок квитанций одного владельца совпадает с порядком sequence id.
func (e *Engine) receipt(owner string, op models.Operation, delta, balance, returned int64) models.Receipt {
	return models.Receipt{
		SequenceID:       e.seq.Add(1),
		Owner:            owner,
		Operation:        op,
		AmountDelta:      delta,
		ResultingBalance: balance,
		ReturnedAmount:   returned,
		CreatedAt:        e.now(),
	}
}

// Initialize создает хранилище с нулевым балансом.
func (e *Engine) Initialize(owner string) (models.Receipt, error) {
	if owner == "" {
		return models.Receipt{}, ErrEmptyOwner
	}
	s := e.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[owner]; ok {
		return models.Receipt{}, fmt.Errorf("initialize %q: %w", owner, ErrAlreadyExists)
	}
	s.vaults[owner] = 0
	return e.receipt(owner, models.OperationInitialize, 0, 0, 0), nil
}

// Deposit увеличивает баланс хранилища на amount.
func (e *Engine) Deposit(owner string, amount int64) (models.Receipt, error) {
	if owner == "" {
		return models.Receipt{}, ErrEmptyOwner
	}
	if amount <= 0 {
		return models.Receipt{}, fmt.Errorf("deposit %d: %w", amount, ErrInvalidAmount)
	}
	s := e.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.vaults[owner]
	if !ok {
		return models.Receipt{}, fmt.Errorf("deposit %q: %w", owner, ErrNotFound)
	}
	if balance > math.MaxInt64-amount {
		return models.Receipt{}, fmt.Errorf("deposit %d to balance %d: %w", amount, balance, ErrOverflow)
	}
	balance += amount
	s.vaults[owner] = balance
	return e.receipt(owner, models.OperationDeposit, amount, balance, 0), nil
}

// Withdraw уменьшает баланс хранилища на amount.
func (e *Engine) Withdraw(owner string, amount int64) (models.Receipt, error) {
	if owner == "" {
		return models.Receipt{}, ErrEmptyOwner
	}
	if amount <= 0 {
		return models.Receipt{}, fmt.Errorf("withdraw %d: %w", amount, ErrInvalidAmount)
	}
	s := e.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.vaults[owner]
	if !ok {
		return models.Receipt{}, fmt.Errorf("withdraw %q: %w", owner, ErrNotFound)
	}
	if amount > balance {
		return models.Receipt{}, fmt.Errorf("withdraw %d from balance %d: %w", amount, balance, ErrInsufficientFunds)
	}
	balance -= amount
	s.vaults[owner] = balance
	return e.receipt(owner, models.OperationWithdraw, -amount, balance, 0), nil
}

// Close удаляет хранилище и возвращает весь остаток владельцу.
// Возвращенная сумма содержится в Receipt.ReturnedAmount.
func (e *Engine) Close(owner string) (models.Receipt, error) {
	if owner == "" {
		return models.Receipt{}, ErrEmptyOwner
	}
	s := e.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.vaults[owner]
	if !ok {
		return models.Receipt{}, fmt.Errorf("close %q: %w", owner, ErrNotFound)
	}
	delete(s.vaults, owner)
	return e.receipt(owner, models.OperationClose, -balance, 0, balance), nil
}

// Balance возвращает текущий баланс хранилища.
func (e *Engine) Balance(owner string) (int64, error) {
	if owner == "" {
		return 0, ErrEmptyOwner
	}
	s := e.shardFor(owner)
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.vaults[owner]
	if !ok {
		return 0, fmt.Errorf("balance %q: %w", owner, ErrNotFound)
	}
	return balance, nil
}

// LastSequence возвращает последний выданный sequence id.
func (e *Engine) LastSequence() uint64 {
	return e.seq.Load()
}

// Snapshot возвращает копию всех открытых хранилищ, отсортированную по владельцу.
// Каждый сегмент читается под своей блокировкой.
func (e *Engine) Snapshot() []models.VaultRecord {
	var records []models.VaultRecord
	for _, s := range e.shards {
		s.mu.RLock()
		for owner, balance := range s.vaults {
			records = append(records, models.VaultRecord{Owner: owner, Balance: balance, Exists: true})
		}
		s.mu.RUnlock()
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Owner < records[j].Owner })
	return records
}

// Restore загружает сохраненное состояние в движок при старте.
// Закрытые записи пропускаются, нумерация квитанций продолжается после lastSequence.
// Записи сначала проверяются целиком: при ошибке движок не меняется.
func (e *Engine) Restore(records []models.VaultRecord, lastSequence uint64) error {
	open := make(map[string]int64, len(records))
	for _, r := range records {
		if !r.Exists {
			continue
		}
		if r.Owner == "" {
			return ErrEmptyOwner
		}
		if r.Balance < 0 {
			return fmt.Errorf("restore %q with balance %d: %w", r.Owner, r.Balance, ErrInvalidAmount)
		}
		if _, dup := open[r.Owner]; dup {
			return fmt.Errorf("restore %q: %w", r.Owner, ErrAlreadyExists)
		}
		open[r.Owner] = r.Balance
	}

	// Блокируем все сегменты в порядке индексов, чтобы проверка и вставка были атомарными
	for _, s := range e.shards {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range e.shards {
			s.mu.Unlock()
		}
	}()
	for owner := range open {
		if _, ok := e.shardFor(owner).vaults[owner]; ok {
			return fmt.Errorf("restore %q: %w", owner, ErrAlreadyExists)
		}
	}
	for owner, balance := range open {
		e.shardFor(owner).vaults[owner] = balance
	}

	for {
		cur := e.seq.Load()
		if cur >= lastSequence || e.seq.CompareAndSwap(cur, lastSequence) {
			return nil
		}
	}
}
