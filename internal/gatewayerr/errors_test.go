package gatewayerr

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	a := New(CodeEviction, "runner evicted by workflow")
	b := New(CodeEviction, "")
	c := New(CodeInvalidPacket, "")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCloseFrameConnectionClosedIsNormal(t *testing.T) {
	code, reason := New(CodeConnectionClosed, "").CloseFrame()
	assert.Equal(t, 1000, code)
	assert.Equal(t, "ws.connection_closed", reason)
}

func TestCloseFrameOtherCodesAreError(t *testing.T) {
	for _, c := range []Code{CodeEviction, CodeNewRunnerConnected, CodeTimedOutWaitingForInit, CodeInvalidInitialPacket, CodeInvalidPacket, CodeInvalidUrl, CodeInternal} {
		code, _ := New(c, "").CloseFrame()
		assert.Equal(t, 1011, code, "code %s", c)
	}
}

func TestCloseFrameReasonNeverIncludesDetail(t *testing.T) {
	_, reason := New(CodeInvalidPacket, "internal detail that must not reach the wire").CloseFrame()
	assert.Equal(t, "ws.invalid_packet", reason)
}

func TestTruncateUTF8StopsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 100) // 2 bytes per rune
	out := truncateUTF8(s, maxReasonBytes)

	require.LessOrEqual(t, len(out), maxReasonBytes)
	require.True(t, utf8.ValidString(out))
}

func TestCloseFrameForNil(t *testing.T) {
	code, reason := CloseFrameFor(nil)
	assert.Equal(t, 1000, code)
	assert.Equal(t, "ws.connection_closed", reason)
}

func TestCloseFrameForUnexpectedError(t *testing.T) {
	code, reason := CloseFrameFor(errors.New("boom"))
	assert.Equal(t, 1011, code)
	assert.Equal(t, "ws.internal", reason)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "ws.eviction", New(CodeEviction, "").Error())
	assert.Equal(t, "ws.eviction: requested by workflow", New(CodeEviction, "requested by workflow").Error())
}
