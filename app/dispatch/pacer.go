package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/waveline/waveline/utils"
)

// Pacer spaces successive item completions to a target messages/second rate.
// It measures the time one item's full processing actually consumed and
// sleeps only the shortfall, so slow provider calls are not compounded with a
// full interval on top. An optional shared limiter additionally clamps the
// aggregate throughput of every pacer on the same channel.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
	last     time.Time
}

// NewPacer builds a pacer for the given rate, clamped to the provider-wide
// ceiling. A nil limiter disables the aggregate clamp.
func NewPacer(perSecond int, limiter *rate.Limiter) *Pacer {
	if perSecond <= 0 {
		perSecond = 1
	}
	if perSecond > utils.GlobalRateCeiling {
		perSecond = utils.GlobalRateCeiling
	}
	return &Pacer{
		interval: time.Second / time.Duration(perSecond),
		limiter:  limiter,
	}
}

// Wait blocks until the next item may start. The first call returns
// immediately; each later call sleeps whatever remains of the pacing interval
// after the previous item's own processing time, then defers to the shared
// channel limiter. Returns the context error on cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.last.IsZero() {
		if shortfall := p.interval - time.Since(p.last); shortfall > 0 {
			if err := sleep(ctx, shortfall); err != nil {
				return err
			}
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	p.last = time.Now()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ChannelLimiters hands out one shared rate limiter per channel so that
// concurrent campaigns on the same provider account never exceed the
// provider ceiling in aggregate.
type ChannelLimiters struct {
	mu       sync.Mutex
	ceiling  rate.Limit
	limiters map[uint]*rate.Limiter
}

func NewChannelLimiters(ceilingPerSecond int) *ChannelLimiters {
	if ceilingPerSecond <= 0 {
		ceilingPerSecond = utils.GlobalRateCeiling
	}
	return &ChannelLimiters{
		ceiling:  rate.Limit(ceilingPerSecond),
		limiters: make(map[uint]*rate.Limiter),
	}
}

// For returns the shared limiter for a channel, creating it on first use.
func (c *ChannelLimiters) For(channelID uint) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[channelID]; ok {
		return l
	}
	l := rate.NewLimiter(c.ceiling, int(c.ceiling))
	c.limiters[channelID] = l
	return l
}
