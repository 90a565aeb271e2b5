package redisidem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/summa-ledger/summa/mmodel"
)

type fakeBacking struct {
	records map[string]*mmodel.IdempotencyKey
	finds   int
}

func (f *fakeBacking) Find(ctx context.Context, ledgerID, key string) (*mmodel.IdempotencyKey, error) {
	f.finds++
	return f.records[cacheKey(ledgerID, key)], nil
}

func (f *fakeBacking) Upsert(ctx context.Context, k *mmodel.IdempotencyKey) error {
	if f.records == nil {
		f.records = map[string]*mmodel.IdempotencyKey{}
	}
	f.records[cacheKey(k.LedgerID, k.Key)] = k
	return nil
}

func TestCacheKeyNamespacesByLedger(t *testing.T) {
	assert.Equal(t, "summa:idem:ldg-1:abc", cacheKey("ldg-1", "abc"))
	assert.NotEqual(t, cacheKey("ldg-1", "abc"), cacheKey("ldg-2", "abc"))
}

// With no reachable Redis connection, Find/Upsert fall through to the
// backing store rather than failing the request.
func TestFindFallsThroughToBackingWithoutRedis(t *testing.T) {
	backing := &fakeBacking{records: map[string]*mmodel.IdempotencyKey{
		cacheKey("ldg-1", "key-1"): {LedgerID: "ldg-1", Key: "key-1", Reference: "ref-1"},
	}}
	c := New(&Connection{}, backing, time.Minute)

	rec, err := c.Find(context.Background(), "ldg-1", "key-1")

	assert.NoError(t, err)
	assert.Equal(t, "ref-1", rec.Reference)
	assert.Equal(t, 1, backing.finds)
}

func TestUpsertWritesThroughToBackingWithoutRedis(t *testing.T) {
	backing := &fakeBacking{}
	c := New(&Connection{}, backing, time.Minute)
	rec := &mmodel.IdempotencyKey{LedgerID: "ldg-1", Key: "key-1", Reference: "ref-1"}

	err := c.Upsert(context.Background(), rec)
	assert.NoError(t, err)

	stored, err := c.Find(context.Background(), "ldg-1", "key-1")
	assert.NoError(t, err)
	assert.Equal(t, "ref-1", stored.Reference)
}
