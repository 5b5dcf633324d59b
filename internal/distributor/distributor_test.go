package distributor

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testDistributor() *Distributor {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return New(nil, lg)
}

func int64p(v int64) *int64 { return &v }

func TestDispatchReachesGlobalSubscriber(t *testing.T) {
	d := testDistributor()
	ch, cancel := d.Subscribe(nil)
	defer cancel()

	d.dispatch(Notification{EventID: 1, TableID: int64p(7), Kind: "bet"})
	d.dispatch(Notification{EventID: 2, TableID: nil, Kind: "deposit"})

	n := <-ch
	require.Equal(t, int64(1), n.EventID)
	n = <-ch
	require.Equal(t, int64(2), n.EventID, "global subscribers see everything")
}

func TestDispatchFiltersByTable(t *testing.T) {
	d := testDistributor()
	ch, cancel := d.Subscribe(int64p(7))
	defer cancel()

	d.dispatch(Notification{EventID: 1, TableID: int64p(9), Kind: "bet"})
	d.dispatch(Notification{EventID: 2, TableID: int64p(7), Kind: "bet"})
	d.dispatch(Notification{EventID: 3, TableID: nil, Kind: "leaderboard_reset"})

	n := <-ch
	require.Equal(t, int64(2), n.EventID, "other tables are filtered out")
	n = <-ch
	require.Equal(t, int64(3), n.EventID, "table-less events pass the filter")
	require.Empty(t, ch)
}

func TestCancelRemovesSubscriber(t *testing.T) {
	d := testDistributor()
	ch, cancel := d.Subscribe(nil)

	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open, "cancel closes the channel")

	d.dispatch(Notification{EventID: 1, Kind: "bet"})

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Empty(t, d.subs)
}

func TestDispatchDropsWhenBufferFull(t *testing.T) {
	d := testDistributor()
	ch, cancel := d.Subscribe(nil)
	defer cancel()

	for i := 0; i < 200; i++ {
		d.dispatch(Notification{EventID: int64(i), Kind: "bet"})
	}

	// The buffer holds 64; the rest were dropped without blocking.
	require.Len(t, ch, 64)
	n := <-ch
	require.Equal(t, int64(0), n.EventID, "oldest notifications are kept")
}
