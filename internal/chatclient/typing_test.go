package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingTrackerExpires(t *testing.T) {
	clock, advance := fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	tr := NewTypingTracker(3 * time.Second)
	tr.now = clock

	tr.Apply("general", "bob", true)
	advance(time.Second)
	tr.Apply("general", "alice", true)
	require.Equal(t, []string{"alice", "bob"}, tr.Active("general"))

	advance(2 * time.Second)
	require.Equal(t, []string{"alice"}, tr.Active("general"))

	advance(time.Second)
	require.Empty(t, tr.Active("general"))
}

func TestTypingTrackerRefreshAndStop(t *testing.T) {
	clock, advance := fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	tr := NewTypingTracker(0)
	tr.now = clock

	tr.Apply("general", "bob", true)
	advance(2 * time.Second)
	tr.Apply("general", "bob", true)
	advance(2 * time.Second)
	require.Equal(t, []string{"bob"}, tr.Active("general"))

	tr.Apply("general", "bob", false)
	require.Empty(t, tr.Active("general"))

	tr.Apply("random", "carol", false)
	require.Empty(t, tr.Active("random"))
}
