package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type orderHook struct {
	name  string
	trace *[]string
}

func (h orderHook) BeforeTransaction(ctx context.Context, hc TransactionHookContext) error {
	*h.trace = append(*h.trace, "before:"+h.name)
	return nil
}

func (h orderHook) AfterTransaction(ctx context.Context, hc TransactionHookContext) error {
	*h.trace = append(*h.trace, "after:"+h.name)
	return nil
}

func TestDispatcherBeforeRunsInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var trace []string
	d.WithBeforeTransaction(orderHook{name: "a", trace: &trace})
	d.WithBeforeTransaction(orderHook{name: "b", trace: &trace})

	err := d.BeforeTransaction(context.Background(), TransactionHookContext{})

	assert.NoError(t, err)
	assert.Equal(t, []string{"before:a", "before:b"}, trace)
}

func TestDispatcherAfterRunsInReverseOrder(t *testing.T) {
	d := NewDispatcher()
	var trace []string
	d.WithAfterTransaction(orderHook{name: "a", trace: &trace})
	d.WithAfterTransaction(orderHook{name: "b", trace: &trace})

	err := d.AfterTransaction(context.Background(), TransactionHookContext{})

	assert.NoError(t, err)
	assert.Equal(t, []string{"after:b", "after:a"}, trace)
}

type erroringBeforeHook struct{ err error }

func (h erroringBeforeHook) BeforeTransaction(ctx context.Context, hc TransactionHookContext) error {
	return h.err
}

func TestDispatcherBeforeStopsAtFirstError(t *testing.T) {
	d := NewDispatcher()
	var trace []string
	wantErr := assert.AnError
	d.WithBeforeTransaction(orderHook{name: "a", trace: &trace})
	d.WithBeforeTransaction(erroringBeforeHook{err: wantErr})
	d.WithBeforeTransaction(orderHook{name: "c", trace: &trace})

	err := d.BeforeTransaction(context.Background(), TransactionHookContext{})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, []string{"before:a"}, trace)
}

func TestRegisterAcceptsSatisfiedDependencies(t *testing.T) {
	d := NewDispatcher()
	assert.NoError(t, d.Register(Registration{ID: "base"}))
	assert.NoError(t, d.Register(Registration{ID: "extension", Dependencies: []string{"base"}}))
}

func TestRegisterRejectsMissingDependency(t *testing.T) {
	d := NewDispatcher()
	err := d.Register(Registration{ID: "extension", Dependencies: []string{"base"}})
	assert.Error(t, err)
}

func TestWorkersReturnsRegisteredWorkers(t *testing.T) {
	d := NewDispatcher()
	d.WithWorker(Worker{ID: "sweeper"})
	d.WithWorker(Worker{ID: "drainer"})

	workers := d.Workers()

	assert.Len(t, workers, 2)
	assert.Equal(t, "sweeper", workers[0].ID)
	assert.Equal(t, "drainer", workers[1].ID)
}
