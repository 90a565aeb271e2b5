package holds

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/summa-ledger/summa/mmodel"
)

func TestAllocateRemainderEvenSplitSumsExactly(t *testing.T) {
	shares := []mmodel.HoldDestination{{AccountID: "a", Amount: 100}, {AccountID: "b", Amount: 100}, {AccountID: "c", Amount: 100}}

	out := allocateRemainder(100, shares, 300)

	assert.Equal(t, []int64{34, 33, 33}, out)
	var sum int64
	for _, v := range out {
		sum += v
	}
	assert.Equal(t, int64(100), sum)
}

func TestAllocateRemainderProportionalNoRemainder(t *testing.T) {
	shares := []mmodel.HoldDestination{{AccountID: "a", Amount: 200}, {AccountID: "b", Amount: 100}}

	out := allocateRemainder(150, shares, 300)

	assert.Equal(t, []int64{100, 50}, out)
}

func TestAllocateRemainderFavorsLargerSharesFirst(t *testing.T) {
	shares := []mmodel.HoldDestination{{AccountID: "small", Amount: 100}, {AccountID: "big", Amount: 200}}

	out := allocateRemainder(299, shares, 300)

	// floor(299*100/300)=99, floor(299*200/300)=199, remainder=1, goes to
	// the larger share first.
	assert.Equal(t, []int64{99, 200}, out)
}
