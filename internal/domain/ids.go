// Package domain defines the core types shared across the runner gateway —
// identifiers, connection-protocol messages, and the small value types that
// flow between the handshake, read loop, and KV handler. These are plain
// data types; behavior lives in the packages that consume them.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RunnerId identifies a runner once it has completed the handshake. It is
// opaque to callers but carries a datacenter label alongside the 128-bit
// value so the gateway (which is itself datacenter-scoped) can tell at a
// glance whether an id was minted locally.
type RunnerId struct {
	id         uuid.UUID
	Datacenter string
}

// NewRunnerId mints a fresh runner identity for the given datacenter.
func NewRunnerId(datacenter string) RunnerId {
	return RunnerId{id: uuid.New(), Datacenter: datacenter}
}

// String renders the id as "<datacenter>/<uuid>", suitable for logs and
// workflow tags.
func (r RunnerId) String() string {
	if r.Datacenter == "" {
		return r.id.String()
	}
	return r.Datacenter + "/" + r.id.String()
}

// IsZero reports whether r is the zero value (no runner resolved).
func (r RunnerId) IsZero() bool {
	return r.id == uuid.Nil && r.Datacenter == ""
}

// NamespaceId identifies a resolved namespace.
type NamespaceId string

// WorkflowId identifies a durable workflow instance in the external engine.
type WorkflowId string

// ActorId identifies an actor. Opaque from the gateway's point of view;
// ParseActorId only rejects the empty string since the actor-lookup
// backend, not the gateway, owns the id's structure.
type ActorId string

// ErrEmptyActorId is returned by ParseActorId for the empty string.
var ErrEmptyActorId = errors.New("domain: actor id must not be empty")

// ParseActorId validates a wire-provided actor id.
func ParseActorId(raw string) (ActorId, error) {
	if raw == "" {
		return "", ErrEmptyActorId
	}
	return ActorId(raw), nil
}

// RunnerKey is the free-form client-supplied name uniquely identifying a
// runner within (namespace, runner-name).
type RunnerKey string

// UrlData holds the parsed, validated upgrade-URL query parameters.
type UrlData struct {
	ProtocolVersion uint16
	Namespace       string
	RunnerKey       RunnerKey
}

// Eligibility is the allocation index's verdict on a runner's placement
// eligibility, reported back to the gateway after an UpdatePing/ClearIdx
// action.
type Eligibility int

const (
	EligibilityEligible Eligibility = iota
	EligibilityReEligible
	EligibilityExpired
)

func (e Eligibility) String() string {
	switch e {
	case EligibilityEligible:
		return "eligible"
	case EligibilityReEligible:
		return "re_eligible"
	case EligibilityExpired:
		return "expired"
	default:
		return fmt.Sprintf("eligibility(%d)", int(e))
	}
}
