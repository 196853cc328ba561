// internal/auth/session_test.go
package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSigner(0)
	require.NoError(t, err)
	player, room := uuid.New(), uuid.New()

	tok, err := s.Issue(player, room)
	require.NoError(t, err)

	gotPlayer, gotRoom, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, player, gotPlayer)
	assert.Equal(t, room, gotRoom)

	assert.NoError(t, s.VerifyFor(tok, player, room))
	assert.Error(t, s.VerifyFor(tok, uuid.New(), room))
	assert.ErrorIs(t, s.VerifyFor(tok, player, uuid.New()), ErrRoomMismatch)
}

func TestExpiredTokenRejected(t *testing.T) {
	s, err := NewSigner(time.Minute)
	require.NoError(t, err)
	base := time.Now()
	s.now = func() time.Time { return base }
	tok, err := s.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _, err = s.Verify(tok)
	assert.Error(t, err)
}

func TestForeignKeyRejected(t *testing.T) {
	a, err := NewSigner(0)
	require.NoError(t, err)
	b, err := NewSigner(0)
	require.NoError(t, err)
	tok, err := a.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)
	_, _, err = b.Verify(tok)
	assert.Error(t, err)
	_, _, err = a.Verify("not-a-token")
	assert.Error(t, err)
}
