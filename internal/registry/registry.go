// Package registry implements C2: the runner-id → live-connection map and
// the single-writer invariant on top of it. Grounded on
// internal/api/sse_limiter.go's SSELimiter (mutex-protected map, atomic
// counters, explicit roll-back-on-race comments) and
// internal/executor/warmpool.go's plain sync.Mutex-guarded maps.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/rivet-gg/engine/internal/domain"
)

// Sink is the minimal outbound surface a transport connection must offer.
// *wsconn.Conn satisfies this; tests use a fake.
type Sink interface {
	WriteBinary(data []byte) error
	WriteClose(code int, reason string) error
}

// Connection is the live gateway-side state for one open socket (spec
// §3). The write lock is per connection (it is the Sink's own, see
// WriteBinary), not on the registry — so C4, C6, and C7/C2 can write to different connections
// concurrently while still never interleaving two writers on the same
// one.
type Connection struct {
	RunnerId        domain.RunnerId
	WorkflowId      domain.WorkflowId
	ProtocolVersion uint16

	// Generation is a monotonic per-RunnerId counter bumped on every
	// Install — a pure observability/test aid (SPEC_FULL.md §"Supplemented
	// features" #5), never consulted for protocol decisions.
	Generation uint64

	sink     Sink
	lastRTT  atomic.Uint32
	closed   atomic.Bool
}

// NewConnection builds a Connection ready for Install.
func NewConnection(runnerId domain.RunnerId, workflowId domain.WorkflowId, protocolVersion uint16, sink Sink) *Connection {
	return &Connection{
		RunnerId:        runnerId,
		WorkflowId:      workflowId,
		ProtocolVersion: protocolVersion,
		sink:            sink,
	}
}

// WriteBinary sends a frame through this connection's sink. The sink
// itself (wsconn.Conn) already serializes its writes; Connection does not
// need a second lock on top of it — the sink *is* the write lock spec §9
// calls for.
func (c *Connection) WriteBinary(data []byte) error {
	return c.sink.WriteBinary(data)
}

// Close sends a close frame exactly once; subsequent calls are no-ops.
// Idempotent because a connection can be closed from more than one
// direction (the read loop's own termination path, C6 eviction, registry
// displacement) and spec §4.2/§9 require at most one close frame.
func (c *Connection) Close(code int, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.sink.WriteClose(code, reason)
}

// SetLastRTT stores the most recently observed round-trip time. Called
// from the read loop (C4) on every inbound Ping; relaxed/lock-free by
// design since C7 tolerates a recent-but-not-latest read (spec §5).
func (c *Connection) SetLastRTT(rtt uint32) {
	c.lastRTT.Store(rtt)
}

// LastRTT reads the most recently observed round-trip time.
func (c *Connection) LastRTT() uint32 {
	return c.lastRTT.Load()
}

// Snapshot is a point-in-time copy of the fields C7 needs, taken without
// holding any lock on the Connection itself.
type Snapshot struct {
	RunnerId   domain.RunnerId
	WorkflowId domain.WorkflowId
	LastRTT    uint32
}

// Registry is the process-wide runner-id → connection map (spec §4.2,
// §9 "Global shared state"). Lookup and Len take the read lock; Install,
// Remove, RemoveIf, DrainAll and Snapshot take the write lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.RunnerId]*Connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[domain.RunnerId]*Connection)}
}

// Install atomically inserts conn under runnerId and returns whatever
// connection was previously registered there (I2: the caller must close
// the returned connection with ws.new_runner_connected before treating
// the new one as live).
func (r *Registry) Install(runnerId domain.RunnerId, conn *Connection) (prev *Connection, displaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, displaced = r.conns[runnerId]
	if displaced {
		conn.Generation = prev.Generation + 1
	} else {
		conn.Generation = 1
	}
	r.conns[runnerId] = conn
	return prev, displaced
}

// Lookup returns the connection currently registered under runnerId, if any.
func (r *Registry) Lookup(runnerId domain.RunnerId) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[runnerId]
	return c, ok
}

// Remove unconditionally drops the entry for runnerId. Idempotent (I3):
// removing an absent id is a no-op.
func (r *Registry) Remove(runnerId domain.RunnerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, runnerId)
}

// RemoveIf drops the entry for runnerId only if it is still exactly conn.
// The read loop uses this on termination rather than Remove: if a
// reconnect has already displaced conn, the stale read-loop goroutine
// must not delete the newer connection's registry entry out from under
// it. Returns true if conn was the one removed.
func (r *Registry) RemoveIf(runnerId domain.RunnerId, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[runnerId]; ok && current == conn {
		delete(r.conns, runnerId)
		return true
	}
	return false
}

// Snapshot copies (runner_id, workflow_id, last_rtt) triples for every
// live connection (spec §4.7 step 1). Takes the write lock per spec
// ("snapshot ... under a write lock") even though it only reads, since
// the lock is held only for the duration of the copy and the result is
// explicit about which lock flavor to take here.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, Snapshot{RunnerId: id, WorkflowId: c.WorkflowId, LastRTT: c.LastRTT()})
	}
	return out
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// DrainAll empties the registry and returns every connection that was in
// it, for use during gateway shutdown.
func (r *Registry) DrainAll() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.conns = make(map[domain.RunnerId]*Connection)
	return out
}
