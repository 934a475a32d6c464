// Package gateway implements the runner gateway's connection lifecycle:
// C3 (handshake.go), C4 (readloop.go), C5 (kv.go), C6 (fanin.go), and C7
// (ping.go), wired together by the Gateway type below. Grounded on
// internal/executor's WarmPoolExecutor, which composes its own
// dispatch/poll/cleanup sub-parts into one top-level struct the same way.
package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivet-gg/engine/internal/config"
	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/registry"
	"github.com/rivet-gg/engine/internal/wire"
)

// Deps bundles every external collaborator the gateway needs (spec §6).
// The host application supplies real implementations; internal/external's
// fakes stand in for tests and the example binary.
type Deps struct {
	Namespaces external.NamespaceResolver
	Runners    external.RunnerDirectory
	AllocIndex external.AllocIndex
	Actors     external.ActorLookup
	KV         external.KVBackend
	Workflows  external.WorkflowEngine
	CommandBus *external.CommandBus
}

// Gateway owns the connection registry and the C3-C7 lifecycle around it.
// One Gateway serves one datacenter-scoped set of runner connections.
type Gateway struct {
	config   config.Config
	codec    wire.Codec
	upgrader *websocket.Upgrader
	registry *registry.Registry

	namespaces external.NamespaceResolver
	runners    external.RunnerDirectory
	allocIndex external.AllocIndex
	actors     external.ActorLookup
	kv         external.KVBackend
	workflows  external.WorkflowEngine
	commandBus *external.CommandBus

	fanin       *fanin
	pingAgg     *pingAggregator
	metrics     metrics
	handshakeRL *ipRateLimiter
	running     atomic.Bool
}

// New constructs a Gateway. The caller mounts HandleUpgrade on its router
// and calls Start/Shutdown around the host process's lifetime.
func New(cfg config.Config, deps Deps) *Gateway {
	g := &Gateway{
		config:     cfg,
		codec:      wire.NewJSONCodec(),
		upgrader:   &websocket.Upgrader{},
		registry:   registry.New(),
		namespaces: deps.Namespaces,
		runners:    deps.Runners,
		allocIndex: deps.AllocIndex,
		actors:     deps.Actors,
		kv:         deps.KV,
		workflows:  deps.Workflows,
		commandBus: deps.CommandBus,
	}
	g.fanin = newFanin(g)
	g.pingAgg = newPingAggregator(g, cfg.PingInterval)
	g.handshakeRL = newIPRateLimiter(ipRateLimitConfig{
		RequestsPerSecond: cfg.HandshakeRateLimitPerSecond,
		Burst:             cfg.HandshakeRateLimitBurst,
		CleanupInterval:   5 * time.Minute,
	})
	return g
}

// Start launches C6 and C7. C3/C4 run per-connection as HandleUpgrade is
// called by the host's router.
func (g *Gateway) Start(ctx context.Context) {
	g.fanin.Start(ctx)
	g.pingAgg.Start(ctx)
	g.running.Store(true)
}

// Shutdown stops C6 and C7 and closes every registered connection with a
// going-away close frame (spec §9 "global shared state: tear down by
// dropping all Connections"). It returns once the close frames are
// written: it does not wait for read loops to finish or for peers to
// acknowledge, and ctx is not consulted.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.running.Store(false)
	g.fanin.Stop()
	g.pingAgg.Stop()
	g.handshakeRL.Stop()

	for _, conn := range g.registry.DrainAll() {
		_ = conn.Close(websocket.CloseGoingAway, "gateway shutting down")
	}
}

// HandleUpgrade is the http.HandlerFunc the host mounts at the WebSocket
// upgrade path. It runs C3 inline and, on success, runs the C4 read loop
// on this handler's goroutine for the lifetime of the connection.
func (g *Gateway) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !g.handshakeRL.allow(remoteAddrKey(r)) {
		http.Error(w, "too many handshake attempts", http.StatusTooManyRequests)
		return
	}

	res, err := g.handshake(r.Context(), w, r)
	if err != nil {
		return
	}
	// The read loop does not use this request's context; it runs under
	// context.Background() so an HTTP-layer timeout on the upgrade request
	// can't tear down an otherwise healthy connection. It ends when the
	// socket does (Shutdown closes every registered connection).
	g.runReadLoop(context.Background(), res)
}
