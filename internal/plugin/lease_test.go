package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvisoryKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, advisoryKey("hold-sweeper"), advisoryKey("hold-sweeper"))
	assert.NotEqual(t, advisoryKey("hold-sweeper"), advisoryKey("outbox-drainer"))
}

func TestPostgresAdvisoryLeaserHashesKeyBeforeDelegating(t *testing.T) {
	var gotTry, gotUnlock int64
	l := &PostgresAdvisoryLeaser{
		TryLock: func(ctx context.Context, key int64) (bool, error) {
			gotTry = key
			return true, nil
		},
		Unlock: func(ctx context.Context, key int64) error {
			gotUnlock = key
			return nil
		},
	}

	ok, err := l.TryAcquire(context.Background(), "hold-sweeper")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, advisoryKey("hold-sweeper"), gotTry)

	err = l.Release(context.Background(), "hold-sweeper")
	assert.NoError(t, err)
	assert.Equal(t, advisoryKey("hold-sweeper"), gotUnlock)
}
