package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/types"
)

// recordingInvoker logs every invocation it receives.
type recordingInvoker struct {
	calls []*TriggerContext
	units []*ExecutableUnit
	err   error
}

func (i *recordingInvoker) Invoke(_ context.Context, unit *ExecutableUnit, tctx *TriggerContext) error {
	i.calls = append(i.calls, tctx)
	i.units = append(i.units, unit)
	return i.err
}

func newTrigger(t *testing.T, seq int64, typeID types.KID) *TypeTrigger {
	t.Helper()
	id, err := types.NewKID(types.TypeTriggerPrefix, seq)
	require.NoError(t, err)
	return &TypeTrigger{
		ID:     id,
		TypeID: typeID,
		Unit:   &ExecutableUnit{ID: uuid.New(), Name: "unit", Source: "..."},
	}
}

func typeID(t *testing.T, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID(types.TypePrefix, seq)
	require.NoError(t, err)
	return id
}

func TestRegistryRejectsDisabledTrigger(t *testing.T) {
	r := NewRegistry()
	trig := newTrigger(t, 1, typeID(t, 1))
	trig.Disabled = true
	err := r.Register(trig)
	assert.ErrorIs(t, err, ErrTriggerDisabled)
	assert.False(t, r.HasTriggers(trig.TypeID))
}

func TestRegistryRejectsDuplicateAndMissingUnit(t *testing.T) {
	r := NewRegistry()
	trig := newTrigger(t, 1, typeID(t, 1))
	require.NoError(t, r.Register(trig))
	assert.Error(t, r.Register(trig))

	bare := newTrigger(t, 2, typeID(t, 1))
	bare.Unit = nil
	assert.Error(t, r.Register(bare))
}

func TestRegistryUnregisterIsImmediate(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)
	trig := newTrigger(t, 1, tid)
	trig.BeforeInsert = true
	require.NoError(t, r.Register(trig))
	require.True(t, r.HasTriggers(tid))

	require.NoError(t, r.Unregister(trig.ID))
	assert.False(t, r.HasTriggers(tid))
	assert.Empty(t, r.ActiveForType(tid))

	err := r.Unregister(trig.ID)
	assert.ErrorIs(t, err, ErrTriggerNotRegistered)

	invoker := &recordingInvoker{}
	e := NewExecutor(r, invoker, nil)
	require.NoError(t, e.Execute(context.Background(), tid, true, OpInsert, nil, nil))
	assert.Empty(t, invoker.calls)
}

func TestRegistryUnregisterForType(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)
	other := typeID(t, 2)
	require.NoError(t, r.Register(newTrigger(t, 1, tid)))
	require.NoError(t, r.Register(newTrigger(t, 2, tid)))
	require.NoError(t, r.Register(newTrigger(t, 3, other)))

	r.UnregisterForType(tid)
	assert.False(t, r.HasTriggers(tid))
	assert.True(t, r.HasTriggers(other))
	_, ok := r.Get(mustKID(t, types.TypeTriggerPrefix, 1))
	assert.False(t, ok)
}

func TestExecutorMatchesPhaseAndOperation(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)

	beforeInsert := newTrigger(t, 1, tid)
	beforeInsert.BeforeInsert = true
	afterUpdate := newTrigger(t, 2, tid)
	afterUpdate.AfterUpdate = true
	require.NoError(t, r.Register(beforeInsert))
	require.NoError(t, r.Register(afterUpdate))

	invoker := &recordingInvoker{}
	e := NewExecutor(r, invoker, nil)
	ctx := context.Background()

	require.NoError(t, e.Execute(ctx, tid, true, OpInsert, nil, nil))
	require.Len(t, invoker.calls, 1)
	assert.Equal(t, beforeInsert.Unit, invoker.units[0])
	assert.Equal(t, OpInsert, invoker.calls[0].Op)
	assert.True(t, invoker.calls[0].Before)

	require.NoError(t, e.Execute(ctx, tid, false, OpUpdate, nil, nil))
	require.Len(t, invoker.calls, 2)
	assert.Equal(t, afterUpdate.Unit, invoker.units[1])

	// no trigger listens on delete
	require.NoError(t, e.Execute(ctx, tid, true, OpDelete, nil, nil))
	assert.Len(t, invoker.calls, 2)
}

func TestExecutorOldValuesOnlyWhenRequested(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)

	plain := newTrigger(t, 1, tid)
	plain.BeforeUpdate = true
	withOld := newTrigger(t, 2, tid)
	withOld.BeforeUpdate = true
	withOld.OldValuesInjected = true
	require.NoError(t, r.Register(plain))
	require.NoError(t, r.Register(withOld))

	assert.True(t, NewExecutor(r, nil, nil).AnyOldValuesRequested(tid))

	invoker := &recordingInvoker{}
	e := NewExecutor(r, invoker, nil)
	old := map[types.KID]*types.Record{}

	require.NoError(t, e.Execute(context.Background(), tid, true, OpUpdate, nil, old))
	require.Len(t, invoker.calls, 2)
	assert.Nil(t, invoker.calls[0].OldRecords)
	assert.NotNil(t, invoker.calls[1].OldRecords)
}

func TestExecutorNoOldValuesOnInsert(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)
	trig := newTrigger(t, 1, tid)
	trig.BeforeInsert = true
	trig.OldValuesInjected = true
	require.NoError(t, r.Register(trig))

	invoker := &recordingInvoker{}
	e := NewExecutor(r, invoker, nil)
	require.NoError(t, e.Execute(context.Background(), tid, true, OpInsert, nil, nil))
	require.Len(t, invoker.calls, 1)
	assert.Nil(t, invoker.calls[0].OldRecords)
}

func TestExecutorPropagatesInvokerError(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)
	trig := newTrigger(t, 1, tid)
	trig.BeforeInsert = true
	require.NoError(t, r.Register(trig))

	boom := errors.New("boom")
	e := NewExecutor(r, &recordingInvoker{err: boom}, nil)
	err := e.Execute(context.Background(), tid, true, OpInsert, nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestExecutorRequiresInvokerOnlyWithActiveTriggers(t *testing.T) {
	r := NewRegistry()
	tid := typeID(t, 1)
	e := NewExecutor(r, nil, nil)

	// no triggers: a nil invoker is fine
	require.NoError(t, e.Execute(context.Background(), tid, true, OpInsert, nil, nil))

	trig := newTrigger(t, 1, tid)
	trig.BeforeInsert = true
	require.NoError(t, r.Register(trig))
	assert.Error(t, e.Execute(context.Background(), tid, true, OpInsert, nil, nil))
}

func mustKID(t *testing.T, prefix string, seq int64) types.KID {
	t.Helper()
	id, err := types.NewKID(prefix, seq)
	require.NoError(t, err)
	return id
}
