package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/rpcengine/api"
)

type recordingModule struct {
	name       string
	order      *[]string
	initErr    error
	procShares *[]int64
}

func (m *recordingModule) Init() error {
	*m.order = append(*m.order, "init:"+m.name)
	return m.initErr
}
func (m *recordingModule) Tick(nowMs int64, tickCount uint64) {
	*m.order = append(*m.order, "tick:"+m.name)
}
func (m *recordingModule) Proc(remainMs int64) {
	*m.order = append(*m.order, "proc:"+m.name)
	if m.procShares != nil {
		*m.procShares = append(*m.procShares, remainMs)
	}
}
func (m *recordingModule) Finish() {
	*m.order = append(*m.order, "finish:"+m.name)
}

// A Registry holds at most one module per concrete type, so tests that
// register several recording modules give each its own wrapper type.
type recordingModuleB struct{ recordingModule }
type recordingModuleC struct{ recordingModule }

func TestRegistryOrdersByPriorityThenRegistration(t *testing.T) {
	var order []string
	r := New(0)

	low := &recordingModule{name: "low", order: &order}
	high := &recordingModuleB{recordingModule{name: "high", order: &order}}
	mid := &recordingModuleC{recordingModule{name: "mid", order: &order}}

	require.NoError(t, r.Register(low, api.PriorityLow))
	require.NoError(t, r.Register(high, api.PriorityHigh))
	require.NoError(t, r.Register(mid, api.PriorityMid))

	require.NoError(t, r.InitAll())
	require.Equal(t, []string{"init:high", "init:mid", "init:low"}, order)
}

func TestRegistryRejectsDuplicateType(t *testing.T) {
	r := New(0)
	var order []string
	m1 := &recordingModule{name: "a", order: &order}
	m2 := &recordingModule{name: "b", order: &order}
	require.NoError(t, r.Register(m1, api.PriorityLow))
	require.Error(t, r.Register(m2, api.PriorityLow))
}

func TestRegistryRespectsCapacity(t *testing.T) {
	r := New(1)
	var order []string
	require.NoError(t, r.Register(&recordingModule{name: "a", order: &order}, api.PriorityLow))
	require.Error(t, r.Register(&onceModule{}, api.PriorityLow))
}

type onceModule struct{}

func (onceModule) Init() error                      { return nil }
func (onceModule) Tick(int64, uint64)                {}
func (onceModule) Proc(int64)                        {}
func (onceModule) Finish()                           {}

func TestRegistryInitAllReturnsFirstError(t *testing.T) {
	r := New(0)
	var order []string
	boom := errors.New("boom")
	require.NoError(t, r.Register(&recordingModule{name: "a", order: &order, initErr: boom}, api.PriorityLow))
	require.ErrorIs(t, r.InitAll(), boom)
}

func TestRegistryProcAllSplitsRemainMsAcrossActive(t *testing.T) {
	r := New(0)
	var order []string
	var shares []int64
	require.NoError(t, r.Register(&recordingModule{name: "a", order: &order, procShares: &shares}, api.PriorityLow))
	require.NoError(t, r.Register(&recordingModuleB{recordingModule{name: "b", order: &order, procShares: &shares}}, api.PriorityLow))

	r.ProcAll(10)
	require.Len(t, shares, 2)
	require.Equal(t, int64(5), shares[0])
	require.Equal(t, int64(5), shares[1])
}

func TestRegistryProcAllFloorsAtOneMillisecond(t *testing.T) {
	r := New(0)
	var order []string
	var shares []int64
	require.NoError(t, r.Register(&recordingModule{name: "a", order: &order, procShares: &shares}, api.PriorityLow))
	require.NoError(t, r.Register(&recordingModuleB{recordingModule{name: "b", order: &order, procShares: &shares}}, api.PriorityLow))

	r.ProcAll(1)
	require.Equal(t, []int64{1, 1}, shares)
}

func TestRegistryUnregisterAndFinishAll(t *testing.T) {
	r := New(0)
	var order []string
	m := &recordingModule{name: "a", order: &order}
	require.NoError(t, r.Register(m, api.PriorityLow))
	require.Equal(t, 1, r.Count())
	require.True(t, r.Unregister(m))
	require.Equal(t, 0, r.Count())
	r.FinishAll()
	require.Empty(t, order)
}
