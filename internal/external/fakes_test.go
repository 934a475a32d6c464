package external

import (
	"context"
	"testing"

	"github.com/rivet-gg/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeNamespaceResolverPutAndResolve(t *testing.T) {
	r := NewFakeNamespaceResolver()
	r.Put("ns1", "ns-1")

	id, err := r.ResolveNamespace(context.Background(), "ns1")
	require.NoError(t, err)
	assert.Equal(t, domain.NamespaceId("ns-1"), id)

	_, err = r.ResolveNamespace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNamespaceNotFound)
}

func TestFakeRunnerDirectoryPutGetRemove(t *testing.T) {
	d := NewFakeRunnerDirectory()
	id := domain.NewRunnerId("dc-1")
	d.Put("ns-1", "worker", "key-a", id)

	got, err := d.GetByKey(context.Background(), "ns-1", "worker", "key-a")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = d.GetByKey(context.Background(), "ns-1", "worker", "key-b")
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	d.Remove("ns-1", "worker", "key-a")
	_, err = d.GetByKey(context.Background(), "ns-1", "worker", "key-a")
	assert.ErrorIs(t, err, ErrRunnerNotFound)
}

func TestFakeAllocIndexDefaultsToEligible(t *testing.T) {
	idx := NewFakeAllocIndex()
	runnerId := domain.NewRunnerId("dc-1")
	idx.BindWorkflow(runnerId, "wf-1")

	notifications, err := idx.UpdateAllocIdx(context.Background(), []AllocAction{
		{RunnerId: runnerId, UpdatePing: &UpdatePingAction{RTT: 10}},
	})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.EligibilityEligible, notifications[0].Eligibility)
	assert.Equal(t, domain.WorkflowId("wf-1"), notifications[0].WorkflowId)
}

func TestFakeAllocIndexDecideOverridesEligibility(t *testing.T) {
	idx := NewFakeAllocIndex()
	runnerId := domain.NewRunnerId("dc-1")
	idx.BindWorkflow(runnerId, "wf-1")
	idx.Decide = func(id domain.RunnerId, action AllocAction) domain.Eligibility {
		return domain.EligibilityExpired
	}

	notifications, err := idx.UpdateAllocIdx(context.Background(), []AllocAction{
		{RunnerId: runnerId, UpdatePing: &UpdatePingAction{RTT: 0}},
	})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.EligibilityExpired, notifications[0].Eligibility)
}

func TestFakeAllocIndexClearDropsBookkeepingWithoutNotification(t *testing.T) {
	idx := NewFakeAllocIndex()
	runnerId := domain.NewRunnerId("dc-1")
	idx.BindWorkflow(runnerId, "wf-1")

	notifications, err := idx.UpdateAllocIdx(context.Background(), []AllocAction{
		{RunnerId: runnerId, Clear: true},
	})
	require.NoError(t, err)
	assert.Empty(t, notifications)

	// Bookkeeping is gone: a later UpdatePing no longer resolves a workflow id.
	notifications, err = idx.UpdateAllocIdx(context.Background(), []AllocAction{
		{RunnerId: runnerId, UpdatePing: &UpdatePingAction{RTT: 1}},
	})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.WorkflowId(""), notifications[0].WorkflowId)
}

func TestFakeActorLookupSetOwnerAndGetRunner(t *testing.T) {
	lookup := NewFakeActorLookup()
	runnerId := domain.NewRunnerId("dc-1")
	lookup.SetOwner("actor-1", runnerId)

	out, err := lookup.GetRunner(context.Background(), []domain.ActorId{"actor-1", "actor-2"})
	require.NoError(t, err)
	assert.Equal(t, runnerId, out["actor-1"])
	_, ok := out["actor-2"]
	assert.False(t, ok, "unowned actor ids are simply absent, not an error")
}

func TestFakeKVBackendPutGetRoundTrip(t *testing.T) {
	kv := NewFakeKVBackend()
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "actor-1", [][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")}))

	keys, values, metadata, err := kv.Get(ctx, "actor-1", [][]byte{[]byte("a"), []byte("b"), []byte("missing")})
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, []byte("1"), values[0])
	assert.Equal(t, []byte("2"), values[1])
	assert.Nil(t, values[2])
	assert.Greater(t, metadata[0].CreateTs, int64(0))
}

func TestFakeKVBackendPutRejectsMismatchedLengths(t *testing.T) {
	kv := NewFakeKVBackend()
	err := kv.Put(context.Background(), "actor-1", [][]byte{[]byte("a")}, nil)
	assert.Error(t, err)
}

func TestFakeKVBackendListFiltersByPrefixAndOrdersAscending(t *testing.T) {
	kv := NewFakeKVBackend()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "actor-1",
		[][]byte{[]byte("user/b"), []byte("user/a"), []byte("other/x")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3")}))

	keys, _, _, err := kv.List(ctx, "actor-1", "user/", false, nil)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "user/a", string(keys[0]))
	assert.Equal(t, "user/b", string(keys[1]))
}

func TestFakeKVBackendListReverseAndLimit(t *testing.T) {
	kv := NewFakeKVBackend()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "actor-1",
		[][]byte{[]byte("k1"), []byte("k2"), []byte("k3")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3")}))

	limit := int32(1)
	keys, _, _, err := kv.List(ctx, "actor-1", "", true, &limit)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "k3", string(keys[0]))
}

func TestFakeKVBackendDeleteAndDeleteAll(t *testing.T) {
	kv := NewFakeKVBackend()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "actor-1", [][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")}))

	require.NoError(t, kv.Delete(ctx, "actor-1", [][]byte{[]byte("a")}))
	keys, values, _, err := kv.Get(ctx, "actor-1", [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Nil(t, values[0])
	assert.Equal(t, []byte("2"), values[1])
	_ = keys

	require.NoError(t, kv.DeleteAll(ctx, "actor-1"))
	_, values, _, err = kv.Get(ctx, "actor-1", [][]byte{[]byte("b")})
	require.NoError(t, err)
	assert.Nil(t, values[0])
}

func TestFakeWorkflowEngineDispatchIsIdempotentPerRunner(t *testing.T) {
	engine := NewFakeWorkflowEngine()
	runnerId := domain.NewRunnerId("dc-1")

	id1, err := engine.DispatchRunnerWorkflow(context.Background(), RunnerWorkflowInput{RunnerId: runnerId, Name: "n"})
	require.NoError(t, err)
	id2, err := engine.DispatchRunnerWorkflow(context.Background(), RunnerWorkflowInput{RunnerId: runnerId, Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestFakeWorkflowEngineSignalsAppendToLogs(t *testing.T) {
	engine := NewFakeWorkflowEngine()
	runnerId := domain.NewRunnerId("dc-1")
	id, err := engine.DispatchRunnerWorkflow(context.Background(), RunnerWorkflowInput{RunnerId: runnerId, Name: "n"})
	require.NoError(t, err)

	require.NoError(t, engine.SignalInit(context.Background(), id, domain.InitPayload{Name: "n"}))
	require.NoError(t, engine.SignalToServer(context.Background(), id, domain.ToServer{Kind: domain.ToServerKindPing}))
	require.NoError(t, engine.SignalCheckQueue(context.Background(), id))

	assert.Len(t, engine.InitLog, 1)
	assert.Len(t, engine.SignalLog, 1)
	assert.Len(t, engine.CheckQueue, 1)
}

func TestFakeWorkflowEngineGetStatusReflectsWakeCondition(t *testing.T) {
	engine := NewFakeWorkflowEngine()
	runnerId := domain.NewRunnerId("dc-1")
	id, err := engine.DispatchRunnerWorkflow(context.Background(), RunnerWorkflowInput{RunnerId: runnerId, Name: "n"})
	require.NoError(t, err)

	status, ok, err := engine.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, status.HasWakeCondition)

	engine.SetWakeCondition(id, false)
	status, ok, err = engine.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, status.HasWakeCondition)

	_, ok, err = engine.GetStatus(context.Background(), "wf-unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommandBusPublishAndSubscribeToWs(t *testing.T) {
	bus := NewCommandBus(1)
	runnerId := domain.NewRunnerId("dc-1")
	cmd := ToWsCommand{RunnerId: runnerId, Inner: domain.ToClient{Kind: domain.ToClientKindCommand}}

	require.NoError(t, bus.PublishToWs(context.Background(), cmd))

	got, err := bus.ToWsSubscriber().Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestCommandBusPublishAndSubscribeCloseWs(t *testing.T) {
	bus := NewCommandBus(1)
	runnerId := domain.NewRunnerId("dc-1")
	cmd := CloseWsCommand{RunnerId: runnerId}

	require.NoError(t, bus.PublishCloseWs(context.Background(), cmd))

	got, err := bus.CloseWsSubscriber().Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestCommandBusNextRespectsContextCancellation(t *testing.T) {
	bus := NewCommandBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.ToWsSubscriber().Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
