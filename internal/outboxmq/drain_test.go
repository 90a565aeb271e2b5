package outboxmq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/summa-ledger/summa/mmodel"
)

type fakeRepository struct {
	claimErr  error
	rows      []*mmodel.OutboxEntry
	markedIDs []int64
}

func (f *fakeRepository) ClaimUnprocessed(ctx context.Context, limit int) ([]*mmodel.OutboxEntry, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.rows, nil
}

func (f *fakeRepository) MarkProcessed(ctx context.Context, id int64) error {
	f.markedIDs = append(f.markedIDs, id)
	return nil
}

func TestDrainOnceReturnsClaimErrorWithoutDialingBroker(t *testing.T) {
	wantErr := errors.New("claim failed")
	d := &Drainer{
		Conn:       &Connection{ConnectionStringSource: "amqp://unreachable"},
		Repository: &fakeRepository{claimErr: wantErr},
		BatchSize:  10,
	}

	n, err := d.DrainOnce(context.Background())

	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, wantErr)
}

func TestDrainOnceSurfacesUnreachableBrokerError(t *testing.T) {
	d := &Drainer{
		Conn: &Connection{ConnectionStringSource: "amqp://127.0.0.1:1/nonexistent"},
		Repository: &fakeRepository{rows: []*mmodel.OutboxEntry{
			{ID: 1, Topic: "transaction.posted", Payload: []byte(`{}`)},
		}},
		BatchSize: 10,
	}

	n, err := d.DrainOnce(context.Background())

	assert.Equal(t, 0, n)
	assert.Error(t, err)
}
