package external

import (
	"context"
	"fmt"
	"sync"

	"github.com/rivet-gg/engine/internal/domain"
)

// FakeNamespaceResolver is a map-backed NamespaceResolver for tests and the
// example binary.
type FakeNamespaceResolver struct {
	mu    sync.RWMutex
	byName map[string]domain.NamespaceId
}

func NewFakeNamespaceResolver() *FakeNamespaceResolver {
	return &FakeNamespaceResolver{byName: make(map[string]domain.NamespaceId)}
}

func (f *FakeNamespaceResolver) Put(name string, id domain.NamespaceId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byName[name] = id
}

func (f *FakeNamespaceResolver) ResolveNamespace(ctx context.Context, name string) (domain.NamespaceId, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id, ok := f.byName[name]; ok {
		return id, nil
	}
	return "", ErrNamespaceNotFound
}

// runnerDirectoryEntry is the key a FakeRunnerDirectory indexes on.
type runnerDirectoryEntry struct {
	namespaceId domain.NamespaceId
	name        string
	key         domain.RunnerKey
}

// FakeRunnerDirectory is a map-backed RunnerDirectory. Entries are removed
// directly by the test/caller to simulate expiry — there is no TTL logic
// here, matching the fake's role as a pure test double.
type FakeRunnerDirectory struct {
	mu      sync.RWMutex
	byKey   map[runnerDirectoryEntry]domain.RunnerId
}

func NewFakeRunnerDirectory() *FakeRunnerDirectory {
	return &FakeRunnerDirectory{byKey: make(map[runnerDirectoryEntry]domain.RunnerId)}
}

func (f *FakeRunnerDirectory) Put(namespaceId domain.NamespaceId, name string, key domain.RunnerKey, id domain.RunnerId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[runnerDirectoryEntry{namespaceId, name, key}] = id
}

func (f *FakeRunnerDirectory) Remove(namespaceId domain.NamespaceId, name string, key domain.RunnerKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byKey, runnerDirectoryEntry{namespaceId, name, key})
}

func (f *FakeRunnerDirectory) GetByKey(ctx context.Context, namespaceId domain.NamespaceId, name string, key domain.RunnerKey) (domain.RunnerId, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id, ok := f.byKey[runnerDirectoryEntry{namespaceId, name, key}]; ok {
		return id, nil
	}
	return domain.RunnerId{}, ErrRunnerNotFound
}

// FakeAllocIndex is an in-memory allocation index. Eligibility is decided
// by a caller-supplied function so tests can script Expired/ReEligible
// transitions (e.g. the handshake's pre-emptive-ping-defeats-expiry
// scenario, spec §4.3 step 5).
type FakeAllocIndex struct {
	mu        sync.Mutex
	workflows map[domain.RunnerId]domain.WorkflowId

	// Decide maps a runner id and UpdatePing action to the eligibility that
	// should be reported back; nil means EligibilityEligible. ClearIdx
	// actions never consult Decide and never produce a notification.
	Decide func(runnerId domain.RunnerId, action AllocAction) domain.Eligibility
}

func NewFakeAllocIndex() *FakeAllocIndex {
	return &FakeAllocIndex{workflows: make(map[domain.RunnerId]domain.WorkflowId)}
}

// BindWorkflow records which workflow a runner id maps to, so
// UpdateAllocIdx can populate EligibilityNotification.WorkflowId the way
// the real index would via its own bookkeeping.
func (f *FakeAllocIndex) BindWorkflow(runnerId domain.RunnerId, workflowId domain.WorkflowId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[runnerId] = workflowId
}

func (f *FakeAllocIndex) UpdateAllocIdx(ctx context.Context, actions []AllocAction) ([]EligibilityNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	notifications := make([]EligibilityNotification, 0, len(actions))
	for _, action := range actions {
		if action.Clear {
			delete(f.workflows, action.RunnerId)
			continue
		}
		elig := domain.EligibilityEligible
		if f.Decide != nil {
			elig = f.Decide(action.RunnerId, action)
		}
		notifications = append(notifications, EligibilityNotification{
			RunnerId:    action.RunnerId,
			WorkflowId:  f.workflows[action.RunnerId],
			Eligibility: elig,
		})
	}
	return notifications, nil
}

// FakeActorLookup is a map-backed ActorLookup.
type FakeActorLookup struct {
	mu    sync.RWMutex
	owner map[domain.ActorId]domain.RunnerId
}

func NewFakeActorLookup() *FakeActorLookup {
	return &FakeActorLookup{owner: make(map[domain.ActorId]domain.RunnerId)}
}

func (f *FakeActorLookup) SetOwner(actorId domain.ActorId, runnerId domain.RunnerId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner[actorId] = runnerId
}

func (f *FakeActorLookup) GetRunner(ctx context.Context, actorIds []domain.ActorId) (map[domain.ActorId]domain.RunnerId, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[domain.ActorId]domain.RunnerId, len(actorIds))
	for _, id := range actorIds {
		if runnerId, ok := f.owner[id]; ok {
			out[id] = runnerId
		}
	}
	return out, nil
}

// FakeKVBackend is an in-memory, per-actor key/value store.
type FakeKVBackend struct {
	mu    sync.Mutex
	store map[domain.ActorId]map[string][]byte
	ts    map[domain.ActorId]map[string]int64
	clock int64
}

func NewFakeKVBackend() *FakeKVBackend {
	return &FakeKVBackend{
		store: make(map[domain.ActorId]map[string][]byte),
		ts:    make(map[domain.ActorId]map[string]int64),
	}
}

func (f *FakeKVBackend) Get(ctx context.Context, actorId domain.ActorId, keys [][]byte) ([][]byte, [][]byte, []domain.KvEntryMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.store[actorId]
	tsBucket := f.ts[actorId]
	values := make([][]byte, 0, len(keys))
	metadata := make([]domain.KvEntryMetadata, 0, len(keys))
	for _, k := range keys {
		values = append(values, bucket[string(k)])
		metadata = append(metadata, domain.KvEntryMetadata{CreateTs: tsBucket[string(k)]})
	}
	return keys, values, metadata, nil
}

func (f *FakeKVBackend) List(ctx context.Context, actorId domain.ActorId, query string, reverse bool, limit *int32) ([][]byte, [][]byte, []domain.KvEntryMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.store[actorId]
	tsBucket := f.ts[actorId]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if query == "" || hasPrefix(k, query) {
			keys = append(keys, k)
		}
	}
	sortStrings(keys, reverse)
	if limit != nil && *limit >= 0 && int(*limit) < len(keys) {
		keys = keys[:*limit]
	}
	outKeys := make([][]byte, 0, len(keys))
	outValues := make([][]byte, 0, len(keys))
	outMeta := make([]domain.KvEntryMetadata, 0, len(keys))
	for _, k := range keys {
		outKeys = append(outKeys, []byte(k))
		outValues = append(outValues, bucket[k])
		outMeta = append(outMeta, domain.KvEntryMetadata{CreateTs: tsBucket[k]})
	}
	return outKeys, outValues, outMeta, nil
}

func (f *FakeKVBackend) Put(ctx context.Context, actorId domain.ActorId, keys [][]byte, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("external: put: %d keys but %d values", len(keys), len(values))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.store[actorId]
	if !ok {
		bucket = make(map[string][]byte)
		f.store[actorId] = bucket
	}
	tsBucket, ok := f.ts[actorId]
	if !ok {
		tsBucket = make(map[string]int64)
		f.ts[actorId] = tsBucket
	}
	for i, k := range keys {
		bucket[string(k)] = values[i]
		f.clock++
		tsBucket[string(k)] = f.clock
	}
	return nil
}

func (f *FakeKVBackend) Delete(ctx context.Context, actorId domain.ActorId, keys [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.store[actorId]
	for _, k := range keys {
		delete(bucket, string(k))
	}
	return nil
}

func (f *FakeKVBackend) DeleteAll(ctx context.Context, actorId domain.ActorId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, actorId)
	delete(f.ts, actorId)
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// sortStrings is a small insertion sort; the fake never deals with enough
// keys to need anything smarter.
func sortStrings(s []string, reverse bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			less := s[j-1] > s[j]
			if reverse {
				less = s[j-1] < s[j]
			}
			if !less {
				break
			}
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// FakeWorkflowEngine is an in-memory WorkflowEngine: dispatch is unique
// per RunnerId, signals are appended to a log a test can inspect.
type FakeWorkflowEngine struct {
	mu         sync.Mutex
	byRunner   map[domain.RunnerId]domain.WorkflowId
	statuses   map[domain.WorkflowId]WorkflowStatus
	InitLog    []domain.InitPayload
	SignalLog  []domain.ToServer
	CheckQueue []domain.WorkflowId
}

func NewFakeWorkflowEngine() *FakeWorkflowEngine {
	return &FakeWorkflowEngine{
		byRunner: make(map[domain.RunnerId]domain.WorkflowId),
		statuses: make(map[domain.WorkflowId]WorkflowStatus),
	}
}

func (f *FakeWorkflowEngine) DispatchRunnerWorkflow(ctx context.Context, input RunnerWorkflowInput) (domain.WorkflowId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byRunner[input.RunnerId]; ok {
		return id, nil
	}
	id := domain.WorkflowId(fmt.Sprintf("wf-%s", input.RunnerId.String()))
	f.byRunner[input.RunnerId] = id
	f.statuses[id] = WorkflowStatus{HasWakeCondition: true}
	return id, nil
}

func (f *FakeWorkflowEngine) SignalInit(ctx context.Context, workflowId domain.WorkflowId, init domain.InitPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitLog = append(f.InitLog, init)
	return nil
}

func (f *FakeWorkflowEngine) SignalToServer(ctx context.Context, workflowId domain.WorkflowId, msg domain.ToServer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignalLog = append(f.SignalLog, msg)
	return nil
}

func (f *FakeWorkflowEngine) SignalCheckQueue(ctx context.Context, workflowId domain.WorkflowId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CheckQueue = append(f.CheckQueue, workflowId)
	return nil
}

func (f *FakeWorkflowEngine) SetWakeCondition(workflowId domain.WorkflowId, has bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[workflowId] = WorkflowStatus{HasWakeCondition: has}
}

func (f *FakeWorkflowEngine) GetStatus(ctx context.Context, workflowId domain.WorkflowId) (WorkflowStatus, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[workflowId]
	return status, ok, nil
}

// CommandBus is an in-process pub/sub fan-in for ToWsCommand/CloseWsCommand,
// the concrete stand-in for the external "subscribe::<T>" streams of spec
// §6. Grounded on internal/trigger, which implements
// the same channel-backed publish/subscribe shape for its event triggers.
type CommandBus struct {
	toWs    chan ToWsCommand
	closeWs chan CloseWsCommand
}

// NewCommandBus creates a bus with the given channel buffer depth.
func NewCommandBus(buffer int) *CommandBus {
	return &CommandBus{
		toWs:    make(chan ToWsCommand, buffer),
		closeWs: make(chan CloseWsCommand, buffer),
	}
}

// PublishToWs enqueues a command for delivery to a runner's socket. Blocks
// if the bus is full — the bus has no separate backpressure story from its
// channel's own capacity.
func (b *CommandBus) PublishToWs(ctx context.Context, cmd ToWsCommand) error {
	select {
	case b.toWs <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishCloseWs enqueues an eviction request.
func (b *CommandBus) PublishCloseWs(ctx context.Context, cmd CloseWsCommand) error {
	select {
	case b.closeWs <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToWsSubscriber returns a CommandSubscriber bound to this bus.
func (b *CommandBus) ToWsSubscriber() CommandSubscriber { return toWsSubscriber{b} }

// CloseWsSubscriber returns a CloseSubscriber bound to this bus.
func (b *CommandBus) CloseWsSubscriber() CloseSubscriber { return closeWsSubscriber{b} }

type toWsSubscriber struct{ bus *CommandBus }

func (s toWsSubscriber) Next(ctx context.Context) (ToWsCommand, error) {
	select {
	case cmd := <-s.bus.toWs:
		return cmd, nil
	case <-ctx.Done():
		return ToWsCommand{}, ctx.Err()
	}
}

type closeWsSubscriber struct{ bus *CommandBus }

func (s closeWsSubscriber) Next(ctx context.Context) (CloseWsCommand, error) {
	select {
	case cmd := <-s.bus.closeWs:
		return cmd, nil
	case <-ctx.Done():
		return CloseWsCommand{}, ctx.Err()
	}
}
