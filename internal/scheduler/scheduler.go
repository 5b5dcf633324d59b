// Package scheduler drives the table clocks: action timeouts and delayed
// hand starts.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/poker"
)

const tick = 1500 * time.Millisecond

// Scheduler polls for expired action deadlines and tables ready to deal.
// Both loops are idempotent: the service re-checks everything under row
// locks, so overlapping instances are safe.
type Scheduler struct {
	svc *poker.Service
	lg  *logrus.Logger
}

func New(svc *poker.Service, lg *logrus.Logger) *Scheduler {
	return &Scheduler{svc: svc, lg: lg}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.foldExpired(ctx)
			s.startHands(ctx)
		}
	}
}

func (s *Scheduler) foldExpired(ctx context.Context) {
	deadlines, err := s.svc.Store().ExpiredActionDeadlines(ctx, s.svc.Pool(), time.Now())
	if err != nil {
		s.lg.WithError(err).Error("scan action deadlines")
		return
	}
	for _, d := range deadlines {
		if _, err := s.svc.FoldOnTimeout(ctx, d.TableID, d.Seat); err != nil {
			s.lg.WithError(err).WithFields(logrus.Fields{
				"tableId": d.TableID, "handId": d.HandID, "seat": d.Seat,
			}).Error("timeout fold failed")
		}
	}
}

func (s *Scheduler) startHands(ctx context.Context) {
	tables, err := s.svc.Store().TablesAwaitingHand(ctx, s.svc.Pool())
	if err != nil {
		s.lg.WithError(err).Error("scan tables awaiting hand")
		return
	}
	for _, tableID := range tables {
		if _, err := s.svc.StartHandIfReady(ctx, tableID); err != nil {
			s.lg.WithError(err).WithField("tableId", tableID).Error("hand start failed")
		}
	}
}
