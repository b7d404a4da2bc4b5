package devserver

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/stream"
)

// ExpiryScheduler releases pre-reservations that outlived the hold TTL and
// broadcasts the cancellation events. The client core never times a lock
// out on its own: expiry is the server's job, announced over the channel.
type ExpiryScheduler struct {
	cron *cron.Cron
	repo *SlotRepository
	hub  *Hub
	log  *zap.Logger
	ttl  time.Duration
}

// NewExpiryScheduler creates a scheduler sweeping holds older than ttl.
func NewExpiryScheduler(repo *SlotRepository, hub *Hub, log *zap.Logger, ttl time.Duration) *ExpiryScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ExpiryScheduler{
		cron: cron.New(cron.WithSeconds()),
		repo: repo,
		hub:  hub,
		log:  log,
		ttl:  ttl,
	}
}

// Start begins the sweep loop.
func (s *ExpiryScheduler) Start() {
	s.cron.AddFunc("@every 30s", s.sweep)
	s.cron.Start()
	s.log.Info("hold expiry scheduler started", zap.Duration("ttl", s.ttl))
}

// Stop halts the sweep loop and waits for a running sweep to finish.
func (s *ExpiryScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *ExpiryScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	released, err := s.repo.ExpireHolds(ctx, time.Now().Add(-s.ttl))
	if err != nil {
		s.log.Error("expiring holds", zap.Error(err))
		return
	}

	for _, sl := range released {
		s.hub.BroadcastEvent(stream.LiveEvent{
			ServiceID: sl.ServiceID,
			Date:      sl.Date,
			FromTime:  sl.FromTime,
			ToTime:    sl.ToTime,
			DayLabel:  sl.DayLabel,
			Status:    stream.StatusCancelled,
			Seq:       sl.Seq,
		})
		s.log.Info("hold expired", zap.Int64("service_id", sl.ServiceID),
			zap.String("date", sl.Date), zap.String("from", sl.FromTime))
	}
}
