package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/summa-ledger/summa/internal/errkind"
)

func TestResolveSharesFixedAmounts(t *testing.T) {
	amounts, err := resolveShares(1000, []Leg{{Amount: 400}, {Amount: 600}})

	assert.NoError(t, err)
	assert.Equal(t, []int64{400, 600}, amounts)
}

func TestResolveSharesPercentage(t *testing.T) {
	amounts, err := resolveShares(1000, []Leg{{Percentage: 2500}, {Percentage: 7500}})

	assert.NoError(t, err)
	assert.Equal(t, []int64{250, 750}, amounts)
}

func TestResolveSharesRemainingSplitsFloorPlusRemainder(t *testing.T) {
	amounts, err := resolveShares(100, []Leg{{Remaining: true}, {Remaining: true}, {Remaining: true}})

	assert.NoError(t, err)
	assert.Equal(t, int64(100), amounts[0]+amounts[1]+amounts[2])
	assert.Equal(t, []int64{34, 33, 33}, amounts)
}

func TestResolveSharesMixedFixedAndRemaining(t *testing.T) {
	amounts, err := resolveShares(1000, []Leg{{Amount: 700}, {Remaining: true}, {Remaining: true}})

	assert.NoError(t, err)
	assert.Equal(t, []int64{700, 150, 150}, amounts)
}

func TestResolveSharesRejectsLegWithNoShareSpecified(t *testing.T) {
	_, err := resolveShares(1000, []Leg{{}})

	e, ok := errkind.As(err)
	assert.True(t, ok)
	assert.Equal(t, errkind.KindInvalidArgument, e.Kind)
}

func TestResolveSharesRejectsFixedAmountsExceedingTotal(t *testing.T) {
	_, err := resolveShares(1000, []Leg{{Amount: 800}, {Amount: 500}})

	assert.Error(t, err)
}

func TestResolveSharesRejectsAllocationNotSummingToTotal(t *testing.T) {
	_, err := resolveShares(1000, []Leg{{Amount: 400}, {Amount: 400}})

	assert.Error(t, err)
}
