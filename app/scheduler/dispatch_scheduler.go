// Package scheduler runs the background dispatch loop: a durable campaign
// work queue plus a periodic resume sweep for campaigns interrupted by a
// crash or restart.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/config"
	"github.com/waveline/waveline/repository"
)

// DispatchScheduler owns batch continuation. A campaign id pushed onto the
// queue gets one batch run; if pending items remain the id is re-enqueued,
// so no invocation ever blocks for a whole campaign. The sweep ticker
// re-enqueues campaigns stuck in processing whose queue entry was lost.
type DispatchScheduler struct {
	runner    *dispatch.BatchRunner
	campaigns repository.CampaignRepository
	rdb       *redis.Client

	queueKey     string
	pollInterval time.Duration
	logger       *log.Logger
}

func NewDispatchScheduler(
	campaigns repository.CampaignRepository,
	rdb *redis.Client,
	cfg config.DispatchConfig,
	logCfg config.LoggingConfig,
) *DispatchScheduler {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	queueKey := cfg.QueueKey
	if queueKey == "" {
		queueKey = "waveline:dispatch:campaigns"
	}
	return &DispatchScheduler{
		campaigns:    campaigns,
		rdb:          rdb,
		queueKey:     queueKey,
		pollInterval: pollInterval,
		logger:       newSchedulerLogger(logCfg),
	}
}

// newSchedulerLogger writes to stdout and a rotating file so dispatch history
// survives restarts without growing without bound.
func newSchedulerLogger(cfg config.LoggingConfig) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "file" {
			w = rotating
		} else {
			w = io.MultiWriter(os.Stdout, rotating)
		}
	}
	return log.New(w, "dispatch ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Logger exposes the scheduler's logger so the batch runner can share it.
func (s *DispatchScheduler) Logger() *log.Logger {
	return s.logger
}

// SetRunner attaches the batch runner after construction. The runner shares
// the scheduler's logger, so it cannot exist before the scheduler does.
func (s *DispatchScheduler) SetRunner(runner *dispatch.BatchRunner) {
	s.runner = runner
}

// Enqueue queues one batch run for the campaign. Fire and forget: the worker
// picks it up whenever it gets there.
func (s *DispatchScheduler) Enqueue(ctx context.Context, campaignID uint) error {
	return s.rdb.LPush(ctx, s.queueKey, strconv.FormatUint(uint64(campaignID), 10)).Err()
}

// Start launches the queue worker and the resume sweep and returns a stop
// function.
func (s *DispatchScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go s.workLoop(ctx)

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.resumeSweep(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.resumeSweep(ctx)
			}
		}
	}()

	s.logger.Printf("dispatch scheduler started: queue=%s sweep=%s", s.queueKey, s.pollInterval)
	return cancel
}

// workLoop pops campaign ids and runs one batch per pop. Items inside a
// batch are processed sequentially under the rate governor, so one worker
// is the whole consumer side.
func (s *DispatchScheduler) workLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := s.rdb.BRPop(ctx, 2*time.Second, s.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.Printf("queue pop failed: %v", err)
			if err := sleepCtx(ctx, 5*time.Second); err != nil {
				return
			}
			continue
		}
		// BRPop returns [key, value]
		if len(res) != 2 {
			continue
		}
		id, err := strconv.ParseUint(res[1], 10, 64)
		if err != nil {
			s.logger.Printf("discarding malformed queue entry %q", res[1])
			continue
		}
		s.runOne(ctx, uint(id))
	}
}

// runOne executes a single batch and re-enqueues the campaign when pending
// items remain. Fetch-level failures are retried by the resume sweep at the
// next tick, not here.
func (s *DispatchScheduler) runOne(ctx context.Context, campaignID uint) {
	result, err := s.runner.RunBatch(ctx, campaignID)
	if err != nil {
		s.logger.Printf("campaign %d batch failed: %v", campaignID, err)
		return
	}
	if !result.Done {
		if err := s.Enqueue(ctx, campaignID); err != nil {
			s.logger.Printf("failed to re-enqueue campaign %d: %v", campaignID, err)
		}
	}
}

// resumeSweep re-enqueues campaigns sitting in processing. Duplicate queue
// entries are harmless: a batch run claims only pending items and a drained
// campaign run is a no-op.
func (s *DispatchScheduler) resumeSweep(ctx context.Context) {
	stuck, err := s.campaigns.ListNeedingWork(ctx, 100)
	if err != nil {
		s.logger.Printf("resume sweep failed: %v", err)
		return
	}
	for _, campaign := range stuck {
		if err := s.Enqueue(ctx, campaign.ID); err != nil {
			s.logger.Printf("resume sweep could not enqueue campaign %d: %v", campaign.ID, err)
		}
	}
	if len(stuck) > 0 {
		s.logger.Printf("resume sweep re-enqueued %d campaigns", len(stuck))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
