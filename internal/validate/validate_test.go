package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/summa-ledger/summa/internal/errkind"
)

type sample struct {
	LedgerID string `json:"ledgerId" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3"`
}

func TestStructPassesValidInput(t *testing.T) {
	vd := New()

	err := vd.Struct(sample{LedgerID: "ldg-1", Amount: 100, Currency: "USD"})

	assert.NoError(t, err)
}

func TestStructReportsWireFieldNames(t *testing.T) {
	vd := New()

	err := vd.Struct(sample{Amount: 100, Currency: "USD"})

	e, ok := errkind.As(err)
	assert.True(t, ok)
	assert.Equal(t, errkind.KindInvalidArgument, e.Kind)
	assert.Contains(t, e.Details, "ledgerId")
}

func TestStructRejectsNonPositiveAmount(t *testing.T) {
	vd := New()

	err := vd.Struct(sample{LedgerID: "ldg-1", Amount: 0, Currency: "USD"})

	e, ok := errkind.As(err)
	assert.True(t, ok)
	assert.Contains(t, e.Details, "amount")
}

func TestStructRejectsWrongLengthCurrency(t *testing.T) {
	vd := New()

	err := vd.Struct(sample{LedgerID: "ldg-1", Amount: 100, Currency: "US"})

	e, ok := errkind.As(err)
	assert.True(t, ok)
	assert.Contains(t, e.Details, "currency")
}
