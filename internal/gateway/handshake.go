package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivet-gg/engine/internal/domain"
	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/gatewayerr"
	"github.com/rivet-gg/engine/internal/registry"
	"github.com/rivet-gg/engine/internal/wsconn"
)

// handshakeResult is what a successful handshake hands off to the caller
// so it can start the read loop.
type handshakeResult struct {
	conn       *registry.Connection
	wsConn     *wsconn.Conn
	runnerId   domain.RunnerId
	workflowId domain.WorkflowId
}

// handshake runs C3 inline on the accepting goroutine (spec §5): parse the
// upgrade URL, resolve the namespace, wait for the init frame, resolve or
// mint a runner identity, dispatch the runner workflow, and install the
// connection. A failure before the upgrade (bad URL, unknown namespace)
// answers with a plain HTTP error; a failure after it sends a best-effort
// close frame. Either way a non-nil error is returned and the caller must
// not proceed to the read loop.
func (g *Gateway) handshake(ctx context.Context, w http.ResponseWriter, r *http.Request) (*handshakeResult, error) {
	urlData, err := parseUrlData(r.URL.Query())
	if err != nil {
		slog.Warn("gateway: invalid upgrade url", "error", err)
		g.metrics.handshakeFailure()
		// No sink has been upgraded yet; there is nothing to close-frame.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, gatewayerr.New(gatewayerr.CodeInvalidUrl, err.Error())
	}

	namespaceId, err := g.namespaces.ResolveNamespace(ctx, urlData.Namespace)
	if err != nil {
		slog.Warn("gateway: namespace resolution failed", "namespace", urlData.Namespace, "error", err)
		g.metrics.handshakeFailure()
		http.Error(w, "namespace not found", http.StatusNotFound)
		return nil, err
	}

	conn, err := wsconn.Upgrade(w, r, g.upgrader)
	if err != nil {
		return nil, fmt.Errorf("gateway: upgrade: %w", err)
	}
	conn.SetReadLimit(g.config.MaxFrameBytes)

	init, gwErr := g.awaitInit(conn, urlData.ProtocolVersion)
	if gwErr != nil {
		g.metrics.handshakeFailure()
		code, reason := gwErr.CloseFrame()
		_ = conn.WriteClose(code, reason)
		return nil, gwErr
	}

	runnerId, err := g.resolveRunnerId(ctx, namespaceId, init.Name, urlData.RunnerKey)
	if err != nil {
		g.metrics.handshakeFailure()
		gwErr := gatewayerr.New(gatewayerr.CodeInternal, err.Error())
		code, reason := gwErr.CloseFrame()
		_ = conn.WriteClose(code, reason)
		return nil, err
	}

	workflowId, err := g.workflows.DispatchRunnerWorkflow(ctx, external.RunnerWorkflowInput{
		RunnerId:    runnerId,
		NamespaceId: namespaceId,
		Name:        init.Name,
		Key:         urlData.RunnerKey,
		Version:     init.RunnerVersion,
		TotalSlots:  init.TotalSlots,
	})
	if err != nil {
		g.metrics.handshakeFailure()
		gwErr := gatewayerr.New(gatewayerr.CodeInternal, err.Error())
		code, reason := gwErr.CloseFrame()
		_ = conn.WriteClose(code, reason)
		return nil, fmt.Errorf("gateway: dispatch runner workflow: %w", err)
	}

	if err := g.workflows.SignalInit(ctx, workflowId, *init); err != nil {
		slog.Error("gateway: failed to signal init to workflow", "workflow_id", workflowId, "error", err)
	}

	registryConn := registry.NewConnection(runnerId, workflowId, urlData.ProtocolVersion, conn)
	prev, displaced := g.registry.Install(runnerId, registryConn)
	if displaced {
		slog.Info("gateway: displacing existing connection", "runner_id", runnerId.String())
		gwErr := gatewayerr.New(gatewayerr.CodeNewRunnerConnected, "")
		code, reason := gwErr.CloseFrame()
		// Spec §9's "open question": the displaced read task is not
		// cancelled here, only close-framed; it terminates when its own
		// read loop observes the close or the transport fails.
		if err := prev.Close(code, reason); err != nil {
			slog.Warn("gateway: failed to close displaced connection", "runner_id", runnerId.String(), "error", err)
		}
	}

	slog.Info("gateway: handshake complete", "runner_id", runnerId.String(), "workflow_id", workflowId, "namespace", urlData.Namespace)
	return &handshakeResult{conn: registryConn, wsConn: conn, runnerId: runnerId, workflowId: workflowId}, nil
}

// parseUrlData validates the three required upgrade query parameters
// (spec §4.3 step 1, §6).
func parseUrlData(q url.Values) (domain.UrlData, error) {
	versionStr := q.Get("protocol_version")
	if versionStr == "" {
		return domain.UrlData{}, errors.New("missing protocol_version")
	}
	version, err := strconv.ParseUint(versionStr, 10, 16)
	if err != nil {
		return domain.UrlData{}, fmt.Errorf("invalid protocol_version: %w", err)
	}

	namespace := q.Get("namespace")
	if namespace == "" {
		return domain.UrlData{}, errors.New("missing namespace")
	}

	runnerKey := q.Get("runner_key")
	if runnerKey == "" {
		return domain.UrlData{}, errors.New("missing runner_key")
	}

	return domain.UrlData{
		ProtocolVersion: uint16(version),
		Namespace:       namespace,
		RunnerKey:       domain.RunnerKey(runnerKey),
	}, nil
}

// awaitInit waits up to the configured init timeout for exactly one
// inbound binary frame decoding to ToServer::Init (spec §4.3 steps 3-4).
func (g *Gateway) awaitInit(conn *wsconn.Conn, protocolVersion uint16) (*domain.InitPayload, *gatewayerr.Error) {
	if err := conn.SetReadDeadline(time.Now().Add(g.config.InitTimeout)); err != nil {
		return nil, gatewayerr.New(gatewayerr.CodeInternal, err.Error())
	}

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, gatewayerr.New(gatewayerr.CodeConnectionClosed, "")
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, gatewayerr.New(gatewayerr.CodeTimedOutWaitingForInit, "")
		}
		return nil, gatewayerr.New(gatewayerr.CodeTimedOutWaitingForInit, err.Error())
	}

	// The init deadline bounds only this first read; clear it so the read
	// loop's later reads are not cut off by it.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, gatewayerr.New(gatewayerr.CodeInternal, err.Error())
	}

	if messageType != websocket.BinaryMessage {
		return nil, gatewayerr.New(gatewayerr.CodeInvalidInitialPacket, "must be a binary blob")
	}

	msg, err := g.codec.DecodeToServer(protocolVersion, data)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.CodeInvalidInitialPacket, err.Error())
	}
	if msg.Kind != domain.ToServerKindInit || msg.Init == nil {
		return nil, gatewayerr.New(gatewayerr.CodeInvalidInitialPacket, "must be ToServer::Init")
	}

	return msg.Init, nil
}

// resolveRunnerId implements spec §4.3 step 5: look up an existing runner
// by key, pre-emptively ping it to defeat a concurrent expiry sweep, and
// mint a fresh id if none was found or the old one turned out expired.
func (g *Gateway) resolveRunnerId(ctx context.Context, namespaceId domain.NamespaceId, name string, key domain.RunnerKey) (domain.RunnerId, error) {
	existing, err := g.runners.GetByKey(ctx, namespaceId, name, key)
	if errors.Is(err, external.ErrRunnerNotFound) {
		return domain.NewRunnerId(g.config.Datacenter), nil
	}
	if err != nil {
		return domain.RunnerId{}, fmt.Errorf("gateway: get runner by key: %w", err)
	}

	notifications, err := g.allocIndex.UpdateAllocIdx(ctx, []external.AllocAction{
		{RunnerId: existing, UpdatePing: &external.UpdatePingAction{RTT: 0}},
	})
	if err != nil {
		return domain.RunnerId{}, fmt.Errorf("gateway: pre-emptive ping: %w", err)
	}
	for _, n := range notifications {
		if n.RunnerId == existing && n.Eligibility == domain.EligibilityExpired {
			slog.Info("gateway: existing runner identity expired, minting fresh id", "namespace_id", namespaceId, "name", name)
			return domain.NewRunnerId(g.config.Datacenter), nil
		}
	}
	return existing, nil
}
