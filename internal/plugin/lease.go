package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// PostgresAdvisoryLeaser implements Leaser with Postgres session-level
// advisory locks (spec §4.7: "acquired via adapter advisory lock keyed by
// hash(workerId)"). A held lock releases automatically if the session
// dies, so a crashed worker never wedges the lease permanently.
type PostgresAdvisoryLeaser struct {
	TryLock func(ctx context.Context, key int64) (bool, error)
	Unlock  func(ctx context.Context, key int64) error
}

func (l *PostgresAdvisoryLeaser) TryAcquire(ctx context.Context, key string) (bool, error) {
	return l.TryLock(ctx, advisoryKey(key))
}

func (l *PostgresAdvisoryLeaser) Release(ctx context.Context, key string) error {
	return l.Unlock(ctx, advisoryKey(key))
}

// advisoryKey hashes a worker id down to the int64 space pg_try_advisory_lock
// expects.
func advisoryKey(workerID string) int64 {
	sum := sha256.Sum256([]byte(workerID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
