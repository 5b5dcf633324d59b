// Package distributor fans Postgres new_event notifications out to
// in-process subscribers (the SSE streams).
package distributor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Notification is the routing envelope the events_notify trigger emits.
type Notification struct {
	EventID int64  `json:"eventId"`
	TableID *int64 `json:"tableId"`
	Kind    string `json:"kind"`
}

type subscriber struct {
	ch      chan Notification
	tableID *int64 // nil subscribes to everything
}

// Distributor holds one dedicated LISTEN connection and a registry of
// subscribers. Slow subscribers drop notifications rather than block the
// listen loop; SSE resume-by-id covers the gap.
type Distributor struct {
	pool *pgxpool.Pool
	lg   *logrus.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func New(pool *pgxpool.Pool, lg *logrus.Logger) *Distributor {
	return &Distributor{pool: pool, lg: lg, subs: map[*subscriber]struct{}{}}
}

// Subscribe registers for notifications, optionally filtered to one table.
// Table-scoped subscribers also receive notifications without a table id
// (deposits, withdrawals, leaderboard resets).
func (d *Distributor) Subscribe(tableID *int64) (<-chan Notification, func()) {
	sub := &subscriber{ch: make(chan Notification, 64), tableID: tableID}
	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()
	cancel := func() {
		d.mu.Lock()
		if _, ok := d.subs[sub]; ok {
			delete(d.subs, sub)
			close(sub.ch)
		}
		d.mu.Unlock()
	}
	return sub.ch, cancel
}

func (d *Distributor) dispatch(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sub := range d.subs {
		if sub.tableID != nil && n.TableID != nil && *sub.tableID != *n.TableID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			d.lg.WithField("eventId", n.EventID).Warn("subscriber buffer full; notification dropped")
		}
	}
}

// Run listens until ctx is done, reconnecting when the connection drops.
func (d *Distributor) Run(ctx context.Context) {
	for {
		if err := d.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.lg.WithError(err).Error("event listener dropped; reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (d *Distributor) listenOnce(ctx context.Context) error {
	// A pooled connection is hijacked for the lifetime of the LISTEN so
	// the pool never hands it to a query.
	poolConn, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn := poolConn.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, `LISTEN new_event`); err != nil {
		return err
	}
	d.lg.Info("event listener attached")

	for {
		msg, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			d.lg.WithError(err).WithField("payload", msg.Payload).Warn("malformed notification")
			continue
		}
		d.dispatch(n)
	}
}
