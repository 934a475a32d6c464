package gateway

import (
	"context"
	"log/slog"

	"github.com/rivet-gg/engine/internal/domain"
)

// handleKvRequest implements C5 (spec §4.5): parse the actor id, check
// ownership against the external actor lookup, delegate to the KV
// backend, and write exactly one KvResponsePayload back through the
// connection's write lock. No step here ever terminates the read loop —
// every failure becomes a KvErrorResponse carrying the original
// request_id, matching internal/api/authorizer.go's
// ownership-check-then-delegate shape generalized from an HTTP 403 to a
// wire-level error payload.
func (g *Gateway) handleKvRequest(ctx context.Context, res *handshakeResult, req *domain.KvRequestPayload) {
	g.metrics.kvRequest()

	actorId, err := domain.ParseActorId(req.ActorId)
	if err != nil {
		g.sendKvError(res, req.RequestId, err.Error())
		return
	}

	owners, err := g.actors.GetRunner(ctx, []domain.ActorId{actorId})
	if err != nil {
		slog.Error("gateway: actor lookup failed", "actor_id", actorId, "error", err)
		g.sendKvError(res, req.RequestId, "actor lookup failed")
		return
	}
	owner, ok := owners[actorId]
	if !ok || owner != res.runnerId {
		g.sendKvError(res, req.RequestId, "given actor does not belong to runner")
		return
	}

	resp, err := g.dispatchKv(ctx, actorId, req)
	if err != nil {
		g.sendKvError(res, req.RequestId, err.Error())
		return
	}
	resp.RequestId = req.RequestId
	g.sendKvResponse(res, resp)
}

// dispatchKv implements spec §4.5 step 3's per-op switch.
func (g *Gateway) dispatchKv(ctx context.Context, actorId domain.ActorId, req *domain.KvRequestPayload) (*domain.KvResponsePayload, error) {
	switch req.Op {
	case domain.KvOpGet:
		if req.Get == nil {
			return nil, errKvMissingArgs("get")
		}
		keys, values, metadata, err := g.kv.Get(ctx, actorId, req.Get.Keys)
		if err != nil {
			return nil, err
		}
		return &domain.KvResponsePayload{Kind: domain.KvResponseGet, Get: &domain.KvGetResult{Keys: keys, Values: values, Metadata: metadata}}, nil

	case domain.KvOpList:
		if req.List == nil {
			return nil, errKvMissingArgs("list")
		}
		keys, values, metadata, err := g.kv.List(ctx, actorId, req.List.Query, req.List.Reverse, req.List.Limit)
		if err != nil {
			return nil, err
		}
		return &domain.KvResponsePayload{Kind: domain.KvResponseList, List: &domain.KvListResult{Keys: keys, Values: values, Metadata: metadata}}, nil

	case domain.KvOpPut:
		if req.Put == nil {
			return nil, errKvMissingArgs("put")
		}
		if err := g.kv.Put(ctx, actorId, req.Put.Keys, req.Put.Values); err != nil {
			return nil, err
		}
		return &domain.KvResponsePayload{Kind: domain.KvResponsePut}, nil

	case domain.KvOpDelete:
		if req.Delete == nil {
			return nil, errKvMissingArgs("delete")
		}
		if err := g.kv.Delete(ctx, actorId, req.Delete.Keys); err != nil {
			return nil, err
		}
		return &domain.KvResponsePayload{Kind: domain.KvResponseDelete}, nil

	case domain.KvOpDrop:
		if err := g.kv.DeleteAll(ctx, actorId); err != nil {
			return nil, err
		}
		return &domain.KvResponsePayload{Kind: domain.KvResponseDrop}, nil

	default:
		return nil, errKvUnknownOp(req.Op)
	}
}

func (g *Gateway) sendKvResponse(res *handshakeResult, resp *domain.KvResponsePayload) {
	g.writeToClient(res, &domain.ToClient{Kind: domain.ToClientKindKvResponse, KvResponse: resp})
}

func (g *Gateway) sendKvError(res *handshakeResult, requestId, message string) {
	g.sendKvResponse(res, &domain.KvResponsePayload{
		RequestId: requestId,
		Kind:      domain.KvResponseError,
		Error:     &domain.KvErrorResult{Message: message},
	})
}

// writeToClient encodes and writes a ToClient envelope through the
// connection's write lock, shared by C5 here and C6 in fanin.go so that
// both producers serialize identically (spec §4.2, §5).
func (g *Gateway) writeToClient(res *handshakeResult, msg *domain.ToClient) {
	data, err := g.codec.EncodeToClient(res.conn.ProtocolVersion, msg)
	if err != nil {
		slog.Error("gateway: failed to encode ToClient", "runner_id", res.runnerId.String(), "error", err)
		return
	}
	if err := res.conn.WriteBinary(data); err != nil {
		slog.Debug("gateway: failed to write ToClient (connection likely gone)", "runner_id", res.runnerId.String(), "error", err)
	}
}

type errKvMissingArgs string

func (e errKvMissingArgs) Error() string { return "kv request op " + string(e) + " missing its arguments" }

type errKvUnknownOp domain.KvRequestDataKind

func (e errKvUnknownOp) Error() string { return "unknown kv request op " + string(e) }
