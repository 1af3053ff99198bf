// Package govern is the admission-control layer in front of every external
// provider call: daily/monthly caps, a sliding error window that pauses a
// provider, and advisory throttle pacing.
package govern

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linkpellow/brainscraper.io-sub002/internal/config"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
	"github.com/linkpellow/brainscraper.io-sub002/internal/store"
)

// Admission denial reasons. Cooldown clears on its own; quota holds for the
// rest of the period — callers distinguish "wait a bit" from "wait until
// tomorrow".
const (
	ReasonCooldown = "cooldown"
	ReasonQuota    = "quota_exceeded"
)

// Admission is the outcome of a pre-call check.
type Admission struct {
	Allowed bool
	Reason  string
	RetryAt *time.Time // set for cooldown denials
}

// throttleTiers are the fixed inter-call delays per pacing tier.
var throttleTiers = map[string]time.Duration{
	"conservative": 5 * time.Second,
	"standard":     2 * time.Second,
	"aggressive":   500 * time.Millisecond,
}

// Governor tracks per-provider usage, cooldown, and pacing. All admission
// checks and outcome recordings for one provider run under that provider's
// mutex, so two concurrent workers can never both pass a check only one
// should have.
type Governor struct {
	store store.Store
	cfg   config.GovernorConfig
	now   func() time.Time

	mu        sync.Mutex
	providers map[string]*providerState
}

type providerState struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(st store.Store, cfg config.GovernorConfig) *Governor {
	return &Governor{
		store:     st,
		cfg:       cfg,
		now:       time.Now,
		providers: make(map[string]*providerState),
	}
}

func (g *Governor) provider(name string) *providerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps, ok := g.providers[name]
	if !ok {
		delay := g.ThrottleDelay(name)
		ps = &providerState{limiter: rate.NewLimiter(rate.Every(delay), 1)}
		g.providers[name] = ps
	}
	return ps
}

// CheckAdmission must be called before every external call attributable to
// provider. Checks cooldown first, then the daily and monthly caps.
func (g *Governor) CheckAdmission(ctx context.Context, provider string) (Admission, error) {
	ps := g.provider(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := g.now()

	cooldown, err := g.store.GetCooldown(ctx, provider)
	if err != nil {
		return Admission{}, eris.Wrapf(err, "govern: cooldown state %s", provider)
	}
	if cooldown.InCooldown(now) {
		return Admission{Allowed: false, Reason: ReasonCooldown, RetryAt: cooldown.PausedUntil}, nil
	}
	if cooldown.PausedUntil != nil {
		// Expired pause: automatic recovery, clear the persisted state.
		cooldown.PausedUntil = nil
		cooldown.ErrorTimes = nil
		if err := g.store.SetCooldown(ctx, *cooldown); err != nil {
			return Admission{}, eris.Wrapf(err, "govern: clear cooldown %s", provider)
		}
		zap.L().Info("provider cooldown expired, resuming", zap.String("provider", provider))
	}

	usage, err := g.store.GetUsage(ctx, provider, now)
	if err != nil {
		return Admission{}, eris.Wrapf(err, "govern: usage %s", provider)
	}
	caps := g.cfg.Caps[provider]
	if caps.Daily > 0 && usage.DailyCount >= caps.Daily {
		return Admission{Allowed: false, Reason: ReasonQuota}, nil
	}
	if caps.Monthly > 0 && usage.MonthlyCount >= caps.Monthly {
		return Admission{Allowed: false, Reason: ReasonQuota}, nil
	}
	return Admission{Allowed: true}, nil
}

// RecordOutcome must be called after every call. Increments the usage
// counter for the attempt, and on error maintains the sliding window. A
// rate-limit outcome trips the cooldown immediately, regardless of the
// window count.
func (g *Governor) RecordOutcome(ctx context.Context, provider string, callErr error) error {
	ps := g.provider(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := g.now()

	if err := g.store.IncrUsage(ctx, provider, now); err != nil {
		return eris.Wrapf(err, "govern: record usage %s", provider)
	}
	if callErr == nil {
		return nil
	}

	cooldown, err := g.store.GetCooldown(ctx, provider)
	if err != nil {
		return eris.Wrapf(err, "govern: cooldown state %s", provider)
	}

	window := time.Duration(g.cfg.Cooldown.WindowMins) * time.Minute
	pruned := cooldown.ErrorTimes[:0]
	for _, ts := range cooldown.ErrorTimes {
		if now.Sub(ts) <= window {
			pruned = append(pruned, ts)
		}
	}
	cooldown.ErrorTimes = append(pruned, now)

	tripped := len(cooldown.ErrorTimes) > g.cfg.Cooldown.ErrorThreshold
	if resilience.IsRateLimited(callErr) {
		tripped = true
	}
	if tripped && !cooldown.InCooldown(now) {
		pausedUntil := now.Add(time.Duration(g.cfg.Cooldown.PauseMins) * time.Minute)
		cooldown.PausedUntil = &pausedUntil
		zap.L().Warn("provider entering cooldown",
			zap.String("provider", provider),
			zap.Int("window_errors", len(cooldown.ErrorTimes)),
			zap.Time("paused_until", pausedUntil),
			zap.Bool("rate_limited", resilience.IsRateLimited(callErr)))
	}

	if err := g.store.SetCooldown(ctx, *cooldown); err != nil {
		return eris.Wrapf(err, "govern: persist cooldown %s", provider)
	}
	return nil
}

// Resume is the manual cooldown override.
func (g *Governor) Resume(ctx context.Context, provider string) error {
	ps := g.provider(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	err := g.store.SetCooldown(ctx, model.CooldownState{Provider: provider})
	if err != nil {
		return eris.Wrapf(err, "govern: resume %s", provider)
	}
	zap.L().Info("provider cooldown cleared manually", zap.String("provider", provider))
	return nil
}

// ThrottleDelay returns the fixed pacing delay for provider. A per-provider
// tier override wins over the global tier; an unknown tier falls back to
// standard. This is advisory politeness between successive calls, not
// admission control.
func (g *Governor) ThrottleDelay(provider string) time.Duration {
	tier := g.cfg.ThrottleTier
	if override, ok := g.cfg.ThrottleOverrides[provider]; ok {
		tier = override
	}
	if d, ok := throttleTiers[tier]; ok {
		return d
	}
	return throttleTiers["standard"]
}

// Wait blocks until the provider's pacing limiter allows the next call, or
// the context is cancelled.
func (g *Governor) Wait(ctx context.Context, provider string) error {
	return g.provider(provider).limiter.Wait(ctx)
}
