package services

import (
	"hash/fnv"
	"sync"
)

const ownerLockShards = 64

// ownerLocks упорядочивает запись в журнал для одного владельца: операция,
// запись квитанции и сборка выписки выполняются под одной блокировкой.
type ownerLocks struct {
	shards [ownerLockShards]sync.Mutex
}

// lock блокирует сегмент владельца и возвращает функцию разблокировки.
func (l *ownerLocks) lock(owner string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	mu := &l.shards[h.Sum32()%ownerLockShards]
	mu.Lock()
	return mu.Unlock
}
