package executor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.lepak.sg/kannon/group"
	"go.lepak.sg/kannon/kerr"
	"go.lepak.sg/kannon/topology"
	"go.lepak.sg/kannon/worker"
)

func buildSimpleTopology(t *testing.T, ran *atomic.Int64) *topology.Topology {
	t.Helper()
	m := group.NewManager()
	g, err := m.CreateGroup("g")
	assert.NoError(t, err)
	_, err = g.CreateTask("t", func() { ran.Add(1) })
	assert.NoError(t, err)

	top, err := topology.Build(m.Groups())
	assert.NoError(t, err)
	return top
}

func TestExecutor_EmptyWorker(t *testing.T) {
	e := New()
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)
	_, err := e.ExchangeTopology(top)
	assert.NoError(t, err)

	err = e.Execute()
	assert.ErrorIs(t, err, kerr.ErrEmptyWorker)
}

func TestExecutor_MissingTopology(t *testing.T) {
	e := New()
	_, err := e.ExchangeWorker(worker.NewSequential())
	assert.NoError(t, err)

	err = e.Execute()
	assert.ErrorIs(t, err, kerr.ErrInvalidGroupHandle)
}

func TestExecutor_AlreadyIdle(t *testing.T) {
	e := New()
	err := e.WaitFinish()
	assert.ErrorIs(t, err, kerr.ErrAlreadyIdle)
}

func TestExecutor_SequentialRun(t *testing.T) {
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	e := New()
	_, err := e.ExchangeWorker(worker.NewSequential())
	assert.NoError(t, err)
	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)

	assert.NoError(t, e.Execute())
	assert.NoError(t, e.WaitFinish())
	assert.EqualValues(t, 1, ran.Load())
}

func TestExecutor_AlreadyExecuted(t *testing.T) {
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	e := New()
	_, err := e.ExchangeWorker(worker.NewThreading(2))
	assert.NoError(t, err)
	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)

	assert.NoError(t, e.Execute())
	assert.ErrorIs(t, e.Execute(), kerr.ErrAlreadyExecuted)
	assert.NoError(t, e.WaitFinish())
}

func TestExecutor_ThreadingRunAndReRun(t *testing.T) {
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	e := New()
	_, err := e.ExchangeWorker(worker.NewThreading(2))
	assert.NoError(t, err)
	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)

	assert.NoError(t, e.Execute())
	assert.NoError(t, e.WaitFinish())
	assert.False(t, e.Running())

	var ran2 atomic.Int64
	top2 := buildSimpleTopology(t, &ran2)
	_, err = e.ExchangeTopology(top2)
	assert.NoError(t, err)
	_, err = e.ExchangeWorker(worker.NewThreading(2))
	assert.NoError(t, err)

	assert.NoError(t, e.Execute())
	assert.NoError(t, e.WaitFinish())
	assert.EqualValues(t, 1, ran2.Load())
}

func TestExecutor_DetachTopologyAndWorker(t *testing.T) {
	e := New()
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	_, err := e.ExchangeTopology(top)
	assert.NoError(t, err)
	_, err = e.ExchangeWorker(worker.NewSequential())
	assert.NoError(t, err)

	gotTop, err := e.DetachTopology()
	assert.NoError(t, err)
	assert.Equal(t, top, gotTop)
	assert.ErrorIs(t, e.Execute(), kerr.ErrInvalidGroupHandle)

	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)
	gotWrk, err := e.DetachWorker()
	assert.NoError(t, err)
	assert.NotNil(t, gotWrk)
	assert.ErrorIs(t, e.Execute(), kerr.ErrEmptyWorker)
}

func TestExecutor_ExchangeRejectedWhileRunning(t *testing.T) {
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	e := New()
	_, err := e.ExchangeWorker(worker.NewThreading(1))
	assert.NoError(t, err)
	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)
	assert.NoError(t, e.Execute())

	_, err = e.ExchangeTopology(top)
	assert.ErrorIs(t, err, kerr.ErrAlreadyExecuted)
	_, err = e.ExchangeWorker(worker.NewSequential())
	assert.ErrorIs(t, err, kerr.ErrAlreadyExecuted)
	_, err = e.DetachTopology()
	assert.ErrorIs(t, err, kerr.ErrAlreadyExecuted)
	_, err = e.DetachWorker()
	assert.ErrorIs(t, err, kerr.ErrAlreadyExecuted)

	assert.NoError(t, e.WaitFinish())

	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)
}

func TestExecutor_WaitFinishReturnsBeforeTimeout(t *testing.T) {
	var ran atomic.Int64
	top := buildSimpleTopology(t, &ran)

	e := New()
	_, err := e.ExchangeWorker(worker.NewThreading(1))
	assert.NoError(t, err)
	_, err = e.ExchangeTopology(top)
	assert.NoError(t, err)
	assert.NoError(t, e.Execute())

	done := make(chan struct{})
	go func() {
		assert.NoError(t, e.WaitFinish())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not finish in time")
	}
}
