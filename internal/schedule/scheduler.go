// Package schedule provides the delayed poll scheduler. Each pending poll is
// one entry in a Redis sorted set keyed by task id with its due time as the
// score, so a scheduled poll survives a process restart and can be cancelled
// explicitly when its task reaches a terminal state.
package schedule

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// pollSetKey is the sorted set holding pending polls (member = task id,
// score = due unix milliseconds).
const pollSetKey = "imagine:polls"

// Atomic pop of all due members: ZRANGEBYSCORE then ZREM so two dispatchers
// never fire the same poll twice.
var popDueScript = redis.NewScript(
	// language=Lua
	`
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
	if #due > 0 then
		redis.call('ZREM', KEYS[1], unpack(due))
	end
	return due
	`,
)

// DispatchFunc receives a due task id.
type DispatchFunc func(ctx context.Context, id uuid.UUID)

// Scheduler stores pending polls in Redis and dispatches them when due.
type Scheduler struct {
	rdb      redis.UniversalClient
	dispatch DispatchFunc
	logger   *slog.Logger

	// tick is how often the dispatcher checks for due polls.
	tick time.Duration
	// batch bounds how many due polls one tick may pop.
	batch int

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithTick overrides the dispatcher tick interval.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// New creates a Scheduler dispatching due polls to fn.
func New(rdb redis.UniversalClient, logger *slog.Logger, fn DispatchFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		rdb:        rdb,
		dispatch:   fn,
		logger:     logger.With("component", "poll_scheduler"),
		tick:       time.Second,
		batch:      128,
		ctx:        ctx,
		cancelFunc: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers (or re-registers) a poll for the given task after delay.
// Scheduling an already scheduled task moves its due time.
func (s *Scheduler) Schedule(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	due := float64(time.Now().Add(delay).UnixMilli())
	return s.rdb.ZAdd(ctx, pollSetKey, redis.Z{Score: due, Member: id.String()}).Err()
}

// Cancel removes a pending poll for the given task. Cancelling a task with
// no pending poll is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.rdb.ZRem(ctx, pollSetKey, id.String()).Err()
}

// Start launches the dispatcher loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the dispatcher down, leaving pending polls in Redis for the
// next process.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

func (s *Scheduler) dispatchDue() {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	res, err := popDueScript.Run(s.ctx, s.rdb, []string{pollSetKey}, now, s.batch).StringSlice()
	if err != nil && err != redis.Nil {
		s.logger.Error("failed to pop due polls", "error", err)
		return
	}

	for _, member := range res {
		id, err := uuid.Parse(member)
		if err != nil {
			s.logger.Error("dropping malformed poll entry", "member", member)
			continue
		}
		s.wg.Add(1)
		go func(id uuid.UUID) {
			defer s.wg.Done()
			s.dispatch(s.ctx, id)
		}(id)
	}
}
