package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackAndGet(t *testing.T) {
	r := New()
	r.Track("s1", RoverSession{RemoteAddr: "1.2.3.4:1234", ConnectedAt: time.Now(), Active: true})

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "1.2.3.4:1234", s.RemoteAddr)
	assert.True(t, s.Active)
}

func TestUpdateMergesFields(t *testing.T) {
	r := New()
	r.Track("s1", RoverSession{Active: true})

	mount := "ALPHA"
	r.Update("s1", Delta{BoundMountPoint: &mount, BytesReceivedDelta: 10})
	r.Update("s1", Delta{BytesSentDelta: 5})

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "ALPHA", s.BoundMountPoint)
	assert.EqualValues(t, 10, s.BytesReceivedFromRover)
	assert.EqualValues(t, 5, s.BytesSentToRover)
}

func TestUpdateOnUnknownIDIsNoOp(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.Update("missing", Delta{BytesSentDelta: 1})
	})
}

func TestMarkClosedSetsTerminalState(t *testing.T) {
	r := New()
	r.Track("s1", RoverSession{Active: true})
	r.MarkClosed("s1")

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.False(t, s.Active)
	assert.False(t, s.DisconnectedAt.IsZero())
}

func TestListReturnsAllSessions(t *testing.T) {
	r := New()
	r.Track("s1", RoverSession{})
	r.Track("s2", RoverSession{})
	assert.Len(t, r.List(), 2)
}

func TestSweepRemovesOnlyExpiredClosedSessions(t *testing.T) {
	r := New()
	r.SetRetention(time.Hour)
	clk := fixedClock{at: time.Now()}
	r.clock = clk

	r.Track("old", RoverSession{Active: false, DisconnectedAt: clk.Now().Add(-2 * time.Hour)})
	r.Track("recent", RoverSession{Active: false, DisconnectedAt: clk.Now().Add(-30 * time.Minute)})

	n := r.Sweep()
	assert.Equal(t, 1, n)

	_, oldStillThere := r.Get("old")
	assert.False(t, oldStillThere)
	_, recentStillThere := r.Get("recent")
	assert.True(t, recentStillThere)
}

func TestSweepDoesNotForceCloseLiveSessionWithinWindow(t *testing.T) {
	r := New()
	r.SetRetention(time.Hour)
	clk := fixedClock{at: time.Now()}
	r.clock = clk

	r.Track("live", RoverSession{Active: true, ConnectedAt: clk.Now()})
	r.Sweep()

	s, ok := r.Get("live")
	require.True(t, ok)
	assert.True(t, s.Active)
}

func TestSweepEvictsLiveSessionConnectedPastWindowWithoutClosingIt(t *testing.T) {
	r := New()
	r.SetRetention(time.Hour)
	clk := fixedClock{at: time.Now()}
	r.clock = clk

	r.Track("stale-live", RoverSession{Active: true, ConnectedAt: clk.Now().Add(-2 * time.Hour)})
	n := r.Sweep()

	assert.Equal(t, 1, n)
	_, ok := r.Get("stale-live")
	assert.False(t, ok)
}

func TestSweepRunsArtifactRemover(t *testing.T) {
	r := New()
	r.SetRetention(time.Hour)
	clk := fixedClock{at: time.Now()}
	r.clock = clk

	removed := make(chan string, 1)
	r.SetArtifactRemover(func(s RoverSession) error {
		removed <- s.ArtifactPath
		return nil
	})

	r.Track("old", RoverSession{
		Active:         false,
		DisconnectedAt: clk.Now().Add(-2 * time.Hour),
		ArtifactPath:   "/var/log/ntripstation/old.nmea",
	})

	r.Sweep()

	select {
	case path := <-removed:
		assert.Equal(t, "/var/log/ntripstation/old.nmea", path)
	default:
		t.Fatal("artifact remover did not run")
	}
}
