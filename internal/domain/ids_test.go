package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerIdStringIncludesDatacenter(t *testing.T) {
	id := NewRunnerId("dc-1")
	assert.Contains(t, id.String(), "dc-1/")
	assert.False(t, id.IsZero())
}

func TestRunnerIdZeroValueIsZero(t *testing.T) {
	var id RunnerId
	assert.True(t, id.IsZero())
}

func TestParseActorIdRejectsEmpty(t *testing.T) {
	_, err := ParseActorId("")
	require.ErrorIs(t, err, ErrEmptyActorId)
}

func TestParseActorIdAcceptsNonEmpty(t *testing.T) {
	id, err := ParseActorId("actor-123")
	require.NoError(t, err)
	assert.Equal(t, ActorId("actor-123"), id)
}

func TestEligibilityString(t *testing.T) {
	assert.Equal(t, "eligible", EligibilityEligible.String())
	assert.Equal(t, "re_eligible", EligibilityReEligible.String())
	assert.Equal(t, "expired", EligibilityExpired.String())
}
