package domain

// ToServerKind discriminates the payload carried by a ToServer envelope.
type ToServerKind string

const (
	ToServerKindInit        ToServerKind = "init"
	ToServerKindPing        ToServerKind = "ping"
	ToServerKindKvRequest   ToServerKind = "kv_request"
	ToServerKindStateUpdate ToServerKind = "state_update"
)

// ToServer is the envelope for every message a runner sends to the
// gateway. Exactly one of the payload fields matching Kind is populated —
// this is the same tagged-struct-union shape used for JSON envelopes
// throughout this codebase's HTTP layer, generalized from HTTP bodies to
// WebSocket frames.
type ToServer struct {
	Kind        ToServerKind       `json:"kind"`
	Init        *InitPayload       `json:"init,omitempty"`
	Ping        *PingPayload       `json:"ping,omitempty"`
	KvRequest   *KvRequestPayload  `json:"kv_request,omitempty"`
	StateUpdate *StateUpdatePayload `json:"state_update,omitempty"`
}

// InitPayload is the mandatory first frame on every connection.
type InitPayload struct {
	Name          string `json:"name"`
	RunnerVersion uint32 `json:"version"`
	TotalSlots    uint32 `json:"total_slots"`
}

// PingPayload carries the runner's local send timestamp (epoch
// milliseconds) so the gateway can compute a round trip time.
type PingPayload struct {
	Ts int64 `json:"ts"`
}

// KvRequestDataKind discriminates the operation carried by a KvRequestPayload.
type KvRequestDataKind string

const (
	KvOpGet    KvRequestDataKind = "get"
	KvOpList   KvRequestDataKind = "list"
	KvOpPut    KvRequestDataKind = "put"
	KvOpDelete KvRequestDataKind = "delete"
	KvOpDrop   KvRequestDataKind = "drop"
)

// KvRequestPayload is a synchronous KV RPC against per-actor storage.
type KvRequestPayload struct {
	RequestId string            `json:"request_id"`
	ActorId   string            `json:"actor_id"`
	Op        KvRequestDataKind `json:"op"`
	Get       *KvGetArgs        `json:"get,omitempty"`
	List      *KvListArgs       `json:"list,omitempty"`
	Put       *KvPutArgs        `json:"put,omitempty"`
	Delete    *KvDeleteArgs     `json:"delete,omitempty"`
}

type KvGetArgs struct {
	Keys [][]byte `json:"keys"`
}

type KvListArgs struct {
	Query   string `json:"query"`
	Reverse bool   `json:"reverse,omitempty"`
	Limit   *int32 `json:"limit,omitempty"`
}

type KvPutArgs struct {
	Keys   [][]byte `json:"keys"`
	Values [][]byte `json:"values"`
}

type KvDeleteArgs struct {
	Keys [][]byte `json:"keys"`
}

// StateUpdatePayload is the catch-all for runner-reported actor state
// changes that the gateway does not interpret itself — it is forwarded
// verbatim to the runner's workflow as a signal (§4.4, "any other variant").
type StateUpdatePayload struct {
	ActorId    string          `json:"actor_id"`
	Generation uint32          `json:"generation"`
	Kind       string          `json:"kind"`
	State      RawJSON         `json:"state"`
}

// RawJSON is an opaque, pre-encoded JSON value. The gateway never inspects
// it — it is stored or forwarded as-is.
type RawJSON = []byte

// ToClientKind discriminates the payload carried by a ToClient envelope.
type ToClientKind string

const (
	ToClientKindCommand     ToClientKind = "command"
	ToClientKindKvResponse  ToClientKind = "kv_response"
)

// ToClient is the envelope for every message the gateway sends to a
// runner, whether originated by a workflow command (C6) or a KV RPC
// response (C5).
type ToClient struct {
	Kind       ToClientKind     `json:"kind"`
	Command    *CommandPayload  `json:"command,omitempty"`
	KvResponse *KvResponsePayload `json:"kv_response,omitempty"`
}

// CommandPayload is an opaque, workflow-originated instruction for the
// runner (e.g. "start actor", "stop actor"). The gateway treats the
// payload as opaque and only routes it.
type CommandPayload struct {
	ActorId string  `json:"actor_id"`
	Kind    string  `json:"kind"`
	Payload RawJSON `json:"payload"`
}

// KvResponseKind discriminates the variant carried by a KvResponsePayload.
type KvResponseKind string

const (
	KvResponseGet    KvResponseKind = "get"
	KvResponseList   KvResponseKind = "list"
	KvResponsePut    KvResponseKind = "put"
	KvResponseDelete KvResponseKind = "delete"
	KvResponseDrop   KvResponseKind = "drop"
	KvResponseError  KvResponseKind = "error"
)

// KvResponsePayload answers a KvRequestPayload, identified by RequestId.
type KvResponsePayload struct {
	RequestId string             `json:"request_id"`
	Kind      KvResponseKind     `json:"kind"`
	Get       *KvGetResult       `json:"get,omitempty"`
	List      *KvListResult      `json:"list,omitempty"`
	Error     *KvErrorResult     `json:"error,omitempty"`
}

type KvGetResult struct {
	Keys     [][]byte   `json:"keys"`
	Values   [][]byte   `json:"values"`
	Metadata []KvEntryMetadata `json:"metadata"`
}

type KvListResult struct {
	Keys     [][]byte          `json:"keys"`
	Values   [][]byte          `json:"values"`
	Metadata []KvEntryMetadata `json:"metadata"`
}

// KvEntryMetadata is per-key bookkeeping returned alongside values
// (e.g. creation time) — opaque to the gateway, passed through from the
// KV backend.
type KvEntryMetadata struct {
	CreateTs int64 `json:"create_ts"`
}

type KvErrorResult struct {
	Message string `json:"message"`
}
