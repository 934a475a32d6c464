// Package external declares the gateway's §6 boundary: namespace
// resolution, runner identity lookup, the allocation index, actor
// ownership, the KV backend, and the workflow engine. Every op here is
// "out of scope" per spec §1 — the gateway only ever consumes them
// through these interfaces. Grounded on internal/leader
// and internal/license packages, which define similarly narrow
// interfaces for the same reason (swappable backends behind a contract),
// and on internal/postgres for the shape of a batched lookup op.
package external

import (
	"context"

	"github.com/rivet-gg/engine/internal/domain"
)

// NamespaceResolver resolves a namespace name to its id (spec §6
// namespace.resolve_for_name_global).
type NamespaceResolver interface {
	ResolveNamespace(ctx context.Context, name string) (domain.NamespaceId, error)
}

// ErrNamespaceNotFound is returned by NamespaceResolver when no namespace
// matches. Surfaced during handshake as the namespace domain's own error,
// not a ws.* one (spec §7).
var ErrNamespaceNotFound = domainNotFoundError("namespace not found")

type domainNotFoundError string

func (e domainNotFoundError) Error() string { return string(e) }

// RunnerDirectory resolves (namespace, name, key) to a live RunnerId
// (spec §6 runner.get_by_key). ErrRunnerNotFound signals "mint a fresh
// id" rather than a failure.
type RunnerDirectory interface {
	GetByKey(ctx context.Context, namespaceId domain.NamespaceId, name string, key domain.RunnerKey) (domain.RunnerId, error)
}

// ErrRunnerNotFound signals no live runner exists for the given key.
var ErrRunnerNotFound = domainNotFoundError("runner not found")

// AllocAction is the action half of an UpdateAllocIdx call — exactly one
// of UpdatePing or ClearIdx, matching spec §3's UpdatePing{rtt}|ClearIdx.
type AllocAction struct {
	RunnerId domain.RunnerId

	// UpdatePing carries the RTT in milliseconds when this action is a
	// ping update. Clear is true when this action is a ClearIdx instead;
	// exactly one of the two applies.
	UpdatePing *UpdatePingAction
	Clear      bool
}

// UpdatePingAction is the payload of an UpdatePing alloc action.
type UpdatePingAction struct {
	RTT uint32
}

// EligibilityNotification is one entry of the batched response to
// UpdateAllocIdx (spec §6 runner.update_alloc_idx).
type EligibilityNotification struct {
	RunnerId    domain.RunnerId
	WorkflowId  domain.WorkflowId
	Eligibility domain.Eligibility
}

// AllocIndex is the external allocation-index op (spec §3, §4.7, §6).
type AllocIndex interface {
	UpdateAllocIdx(ctx context.Context, actions []AllocAction) ([]EligibilityNotification, error)
}

// ActorLookup resolves actors to their owning runner (spec §6
// actor.get_runner), batched even though C5 always calls it with one id —
// matching the external contract's batch shape.
type ActorLookup interface {
	GetRunner(ctx context.Context, actorIds []domain.ActorId) (map[domain.ActorId]domain.RunnerId, error)
}

// KVBackend is the per-actor key/value store C5 delegates to (spec §4.5,
// §6). Every method is scoped by actorId alone; there is no separate
// backend handle argument.
type KVBackend interface {
	Get(ctx context.Context, actorId domain.ActorId, keys [][]byte) (keys2 [][]byte, values [][]byte, metadata []domain.KvEntryMetadata, err error)
	List(ctx context.Context, actorId domain.ActorId, query string, reverse bool, limit *int32) (keys [][]byte, values [][]byte, metadata []domain.KvEntryMetadata, err error)
	Put(ctx context.Context, actorId domain.ActorId, keys [][]byte, values [][]byte) error
	Delete(ctx context.Context, actorId domain.ActorId, keys [][]byte) error
	DeleteAll(ctx context.Context, actorId domain.ActorId) error
}

// RunnerWorkflowInput is the dispatch payload for a runner's workflow
// (spec §4.3 step 6).
type RunnerWorkflowInput struct {
	RunnerId    domain.RunnerId
	NamespaceId domain.NamespaceId
	Name        string
	Key         domain.RunnerKey
	Version     uint32
	TotalSlots  uint32
}

// WorkflowStatus is the subset of workflow state C7 needs to decide
// whether a runner's workflow is still worth pinging (spec §4.7 step 2).
type WorkflowStatus struct {
	HasWakeCondition bool
}

// WorkflowEngine is the external workflow engine (spec §6): unique
// dispatch keyed by runner id, signal delivery, and a status read.
type WorkflowEngine interface {
	// DispatchRunnerWorkflow is idempotent per RunnerId — concurrent
	// handshakes for the same id converge on one workflow (spec §4.3
	// step 6).
	DispatchRunnerWorkflow(ctx context.Context, input RunnerWorkflowInput) (domain.WorkflowId, error)

	// SignalInit forwards the original Init packet to the runner
	// workflow (spec §4.3 step 7).
	SignalInit(ctx context.Context, workflowId domain.WorkflowId, init domain.InitPayload) error

	// SignalToServer forwards any other ToServer variant read off the
	// socket (spec §4.4 "any other variant").
	SignalToServer(ctx context.Context, workflowId domain.WorkflowId, msg domain.ToServer) error

	// SignalCheckQueue notifies a workflow it should re-examine pending
	// work after a ReEligible transition (spec §4.7 step 4).
	SignalCheckQueue(ctx context.Context, workflowId domain.WorkflowId) error

	// GetStatus reads a workflow's current status, or ok=false if the
	// workflow id is unknown.
	GetStatus(ctx context.Context, workflowId domain.WorkflowId) (status WorkflowStatus, ok bool, err error)
}

// ToWsCommand is the ToWs{runner_id, inner} event C6 subscribes to (spec
// §4.6, §6).
type ToWsCommand struct {
	RunnerId domain.RunnerId
	Inner    domain.ToClient
}

// CloseWsCommand is the CloseWs{runner_id} event C6 subscribes to (spec
// §4.6, §6).
type CloseWsCommand struct {
	RunnerId domain.RunnerId
}

// CommandSubscriber is the workflow→socket command stream (spec §4.6,
// §6 subscribe::<ToWs>). Next blocks until an item is available or ctx
// is done.
type CommandSubscriber interface {
	Next(ctx context.Context) (ToWsCommand, error)
}

// CloseSubscriber is the close-socket command stream (spec §4.6, §6
// subscribe::<CloseWs>).
type CloseSubscriber interface {
	Next(ctx context.Context) (CloseWsCommand, error)
}
