package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivet-gg/engine/internal/domain"
	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/gatewayerr"
)

// runReadLoop owns the socket's read half for the lifetime of the
// connection (C4, spec §4.4). It always runs to completion on its own
// goroutine and always ends in cleanup, regardless of which of the
// several termination causes fired — the same converge-on-one-cleanup
// shape used by this package's other background loops.
func (g *Gateway) runReadLoop(ctx context.Context, res *handshakeResult) {
	g.metrics.connectionOpened()
	defer g.metrics.connectionClosed()

	gwErr := g.readLoopBody(ctx, res)
	g.cleanupConnection(ctx, res, gwErr)
}

// readLoopBody reads frames until the socket ends or a protocol error
// occurs, returning the terminating error to report on the close frame.
// Only this goroutine ever calls res.wsConn.ReadMessage — the single-reader
// invariant documented on wsconn.Conn.
func (g *Gateway) readLoopBody(ctx context.Context, res *handshakeResult) *gatewayerr.Error {
	for {
		messageType, data, err := res.wsConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return gatewayerr.New(gatewayerr.CodeConnectionClosed, "")
			}
			// Any other close code (abnormal closure, protocol error, ...)
			// is not a normal peer close and must not be reported as
			// connection_closed, which encodes to the Normal close code.
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return gatewayerr.New(gatewayerr.CodeInvalidPacket, err.Error())
			}
			return gatewayerr.New(gatewayerr.CodeInternal, err.Error())
		}

		switch messageType {
		case websocket.BinaryMessage:
			if gwErr := g.handleBinaryFrame(ctx, res, data); gwErr != nil {
				return gwErr
			}
		case websocket.CloseMessage:
			return gatewayerr.New(gatewayerr.CodeConnectionClosed, "")
		case websocket.PingMessage, websocket.PongMessage:
			// Transport-level ping/pong: gorilla's read loop already
			// answers pings itself; nothing to do here (spec §4.4).
		default:
			slog.Warn("gateway: skipping non-binary frame", "runner_id", res.runnerId.String(), "message_type", messageType)
		}
	}
}

// handleBinaryFrame decodes and dispatches a single inbound binary frame
// (spec §4.4).
func (g *Gateway) handleBinaryFrame(ctx context.Context, res *handshakeResult, data []byte) *gatewayerr.Error {
	msg, err := g.codec.DecodeToServer(res.conn.ProtocolVersion, data)
	if err != nil {
		return gatewayerr.New(gatewayerr.CodeInvalidPacket, err.Error())
	}

	switch msg.Kind {
	case domain.ToServerKindPing:
		nowMs := time.Now().UnixMilli()
		rtt := nowMs - msg.Ping.Ts
		if rtt < 0 {
			rtt = 0
		}
		res.conn.SetLastRTT(uint32(rtt))
	case domain.ToServerKindKvRequest:
		g.handleKvRequest(ctx, res, msg.KvRequest)
	default:
		if err := g.workflows.SignalToServer(ctx, res.workflowId, *msg); err != nil {
			slog.Error("gateway: failed to signal ToServer to workflow", "workflow_id", res.workflowId, "kind", msg.Kind, "error", err)
		}
	}
	return nil
}

// cleanupConnection implements spec §4.4's termination path: remove from
// the registry (only if this goroutine's connection is still the live
// one — a reconnect may already have displaced it), issue ClearIdx, and
// send a close frame reporting gwErr.
func (g *Gateway) cleanupConnection(ctx context.Context, res *handshakeResult, gwErr *gatewayerr.Error) {
	removed := g.registry.RemoveIf(res.runnerId, res.conn)
	if removed {
		if _, err := g.allocIndex.UpdateAllocIdx(ctx, []external.AllocAction{{RunnerId: res.runnerId, Clear: true}}); err != nil {
			slog.Error("gateway: failed to clear alloc idx on disconnect", "runner_id", res.runnerId.String(), "error", err)
		}
	}

	code, reason := gwErr.CloseFrame()
	if err := res.conn.Close(code, reason); err != nil {
		slog.Debug("gateway: close frame on termination failed (peer likely already gone)", "runner_id", res.runnerId.String(), "error", err)
	}
	slog.Info("gateway: connection terminated", "runner_id", res.runnerId.String(), "reason", gwErr.Error())
}
