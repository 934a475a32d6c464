package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivet-gg/engine/internal/domain"
	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/registry"
)

type recordingSink struct {
	written    [][]byte
	closeCode  int
	closeCalls int
}

func (s *recordingSink) WriteBinary(data []byte) error {
	s.written = append(s.written, data)
	return nil
}

func (s *recordingSink) WriteClose(code int, reason string) error {
	s.closeCode = code
	s.closeCalls++
	return nil
}

func TestFaninHandleToWsDeliversToKnownRunner(t *testing.T) {
	g, _, _ := newGatewayForTest()
	runnerId := domain.NewRunnerId("dc-1")
	sink := &recordingSink{}
	conn := registry.NewConnection(runnerId, "wf-1", 1, sink)
	g.registry.Install(runnerId, conn)

	g.fanin.handleToWs(external.ToWsCommand{
		RunnerId: runnerId,
		Inner:    domain.ToClient{Kind: domain.ToClientKindCommand, Command: &domain.CommandPayload{ActorId: "a", Kind: "start"}},
	})

	require.Len(t, sink.written, 1)
}

func TestFaninHandleToWsDropsUnknownRunnerSilently(t *testing.T) {
	g, _, _ := newGatewayForTest()
	g.fanin.handleToWs(external.ToWsCommand{RunnerId: domain.NewRunnerId("dc-1")})
	// No panic, no registry entry created as a side effect.
	assert.Equal(t, 0, g.registry.Len())
}

func TestFaninHandleCloseWsSendsEvictionCloseFrame(t *testing.T) {
	g, _, _ := newGatewayForTest()
	runnerId := domain.NewRunnerId("dc-1")
	sink := &recordingSink{}
	conn := registry.NewConnection(runnerId, "wf-1", 1, sink)
	g.registry.Install(runnerId, conn)

	g.fanin.handleCloseWs(external.CloseWsCommand{RunnerId: runnerId})

	assert.Equal(t, 1, sink.closeCalls)
	assert.Equal(t, 1011, sink.closeCode)
}

func TestFaninHandleCloseWsOnUnknownRunnerIsNoOp(t *testing.T) {
	g, _, _ := newGatewayForTest()
	g.fanin.handleCloseWs(external.CloseWsCommand{RunnerId: domain.NewRunnerId("dc-1")})
}
