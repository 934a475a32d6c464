package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivet-gg/engine/internal/domain"
	"github.com/rivet-gg/engine/internal/external"
)

func TestResolveRunnerIdReusesExistingWhenStillEligible(t *testing.T) {
	g, allocIndex, _ := newGatewayForTest()
	namespaceId := domain.NamespaceId("ns-1")
	existing := domain.NewRunnerId("dc-1")
	g.runners.(*external.FakeRunnerDirectory).Put(namespaceId, "worker", "key-1", existing)
	allocIndex.Decide = func(domain.RunnerId, external.AllocAction) domain.Eligibility {
		return domain.EligibilityEligible
	}

	got, err := g.resolveRunnerId(context.Background(), namespaceId, "worker", "key-1")
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

// TestResolveRunnerIdMintsFreshIdWhenPreemptivePingReportsExpired exercises
// the trickiest step of the handshake: the pre-emptive UpdatePing against an
// existing runner key race against the allocation index's own expiry sweep.
// If that ping comes back Expired, the old id must not be reused — a fresh
// one is minted so the caller dispatches a new runner workflow instead of
// signaling a workflow that is already tearing down.
func TestResolveRunnerIdMintsFreshIdWhenPreemptivePingReportsExpired(t *testing.T) {
	g, allocIndex, _ := newGatewayForTest()
	namespaceId := domain.NamespaceId("ns-1")
	existing := domain.NewRunnerId("dc-1")
	g.runners.(*external.FakeRunnerDirectory).Put(namespaceId, "worker", "key-1", existing)
	allocIndex.Decide = func(runnerId domain.RunnerId, action external.AllocAction) domain.Eligibility {
		return domain.EligibilityExpired
	}

	got, err := g.resolveRunnerId(context.Background(), namespaceId, "worker", "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, existing, got)
}

func TestResolveRunnerIdMintsFreshIdWhenNoExistingRunner(t *testing.T) {
	g, _, _ := newGatewayForTest()

	got, err := g.resolveRunnerId(context.Background(), domain.NamespaceId("ns-1"), "worker", "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, domain.RunnerId{}, got)
}
