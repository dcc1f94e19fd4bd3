package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl, nil)
	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestCreateAndClaim(t *testing.T) {
	s, _ := newTestStore(10 * time.Minute)
	userID := uuid.New()

	sess := s.Create(userID)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, userID, sess.UserID)

	claimed, err := s.Claim(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claimed.UserID)
}

func TestClaimIsSingleUse(t *testing.T) {
	s, _ := newTestStore(10 * time.Minute)
	sess := s.Create(uuid.New())

	_, err := s.Claim(sess.Token)
	require.NoError(t, err)

	_, err = s.Claim(sess.Token)
	assert.ErrorIs(t, err, ErrSessionClaimed)
}

func TestClaimExpired(t *testing.T) {
	s, clock := newTestStore(10 * time.Minute)
	sess := s.Create(uuid.New())

	*clock = clock.Add(11 * time.Minute)

	_, err := s.Claim(sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClaimUnknownToken(t *testing.T) {
	s, _ := newTestStore(10 * time.Minute)
	_, err := s.Claim("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepDropsExpiredAndClaimed(t *testing.T) {
	s, clock := newTestStore(10 * time.Minute)

	claimed := s.Create(uuid.New())
	_, err := s.Claim(claimed.Token)
	require.NoError(t, err)

	expired := s.Create(uuid.New())
	_ = expired

	*clock = clock.Add(11 * time.Minute)
	live := s.Create(uuid.New())

	removed := s.Sweep()
	assert.Equal(t, 2, removed)

	_, err = s.Claim(live.Token)
	assert.NoError(t, err)
}
