package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Default provider budgets shared by every replica of the service
const (
	DefaultRPM = 500       // Requests per minute
	DefaultTPM = 1_000_000 // Tokens per minute (input + output combined)
	DefaultRPD = 10_000    // Requests per day
)

// ThrottleError reports that a shared budget is nearly spent
type ThrottleError struct {
	Limit   string // RPM, TPM or RPD
	Current int64
	Max     int64
	Wait    time.Duration
}

func (e *ThrottleError) Error() string {
	if e.Limit == "RPD" {
		return fmt.Sprintf("daily quota exceeded: %d/%d requests (resets in %s)", e.Current, e.Max, e.Wait)
	}
	return fmt.Sprintf("approaching %s limit (%d/%d), wait %s", e.Limit, e.Current, e.Max, e.Wait)
}

// Daily reports whether the error is the non-retryable daily quota
func (e *ThrottleError) Daily() bool {
	return e.Limit == "RPD"
}

// budgetScript increments all three counters atomically and reports the first
// limit that crossed its threshold (90% for per-minute limits, 100% per day).
var budgetScript = redis.NewScript(`
	local rpm_key = KEYS[1]
	local tpm_key = KEYS[2]
	local rpd_key = KEYS[3]
	local rpm_limit = tonumber(ARGV[1])
	local tpm_limit = tonumber(ARGV[2])
	local rpd_limit = tonumber(ARGV[3])
	local tokens = tonumber(ARGV[4])

	local rpm = redis.call('INCR', rpm_key)
	local tpm = redis.call('INCRBY', tpm_key, tokens)
	local rpd = redis.call('INCR', rpd_key)

	if rpm == 1 then redis.call('EXPIRE', rpm_key, 70) end
	if tpm == tokens then redis.call('EXPIRE', tpm_key, 70) end
	if rpd == 1 then redis.call('EXPIRE', rpd_key, 86400) end

	if rpm >= rpm_limit * 0.9 then
		return {-1, 'RPM', rpm, rpm_limit}
	end
	if tpm >= tpm_limit * 0.9 then
		return {-2, 'TPM', tpm, tpm_limit}
	end
	if rpd >= rpd_limit then
		return {-3, 'RPD', rpd, rpd_limit}
	end
	return {0, 'OK', rpm, tpm, rpd}
`)

// Budget is a provider quota shared across processes through Redis
type Budget struct {
	redis    *redis.Client
	prefix   string
	rpmLimit int64
	tpmLimit int64
	rpdLimit int64
	logger   *slog.Logger
	now      func() time.Time
}

// NewBudget creates a budget whose counters live under prefix (usually the provider name)
func NewBudget(client *redis.Client, prefix string) *Budget {
	return &Budget{
		redis:    client,
		prefix:   prefix,
		rpmLimit: DefaultRPM,
		tpmLimit: DefaultTPM,
		rpdLimit: DefaultRPD,
		logger:   slog.Default().With("component", "llm_budget", "provider", prefix),
		now:      time.Now,
	}
}

// WithLimits overrides the default limits
func (b *Budget) WithLimits(rpm, tpm, rpd int64) *Budget {
	b.rpmLimit, b.tpmLimit, b.rpdLimit = rpm, tpm, rpd
	return b
}

func (b *Budget) keys(now time.Time) []string {
	return []string{
		fmt.Sprintf("chatform:%s:rpm:%s", b.prefix, now.Format("2006-01-02T15:04")),
		fmt.Sprintf("chatform:%s:tpm:%s", b.prefix, now.Format("2006-01-02T15:04")),
		fmt.Sprintf("chatform:%s:rpd:%s", b.prefix, now.Format("2006-01-02")),
	}
}

// CheckAndIncrement counts one request of estimatedTokens against the budget.
// It returns a *ThrottleError when a threshold has been crossed.
func (b *Budget) CheckAndIncrement(ctx context.Context, estimatedTokens int64) error {
	now := b.now()

	result, err := budgetScript.Run(ctx, b.redis, b.keys(now),
		b.rpmLimit, b.tpmLimit, b.rpdLimit, estimatedTokens).Result()
	if err != nil {
		return fmt.Errorf("rate limiter Redis operation failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return fmt.Errorf("invalid rate limiter response format")
	}
	code, _ := values[0].(int64)
	if code >= 0 {
		return nil
	}

	limit, _ := values[1].(string)
	current, _ := values[2].(int64)
	limitMax, _ := values[3].(int64)

	if limit == "RPD" {
		tomorrow := now.Add(24 * time.Hour)
		midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
		return &ThrottleError{Limit: limit, Current: current, Max: limitMax, Wait: midnight.Sub(now).Round(time.Second)}
	}

	wait := time.Duration(60-now.Second()) * time.Second
	if wait <= 0 {
		wait = time.Second
	}
	return &ThrottleError{Limit: limit, Current: current, Max: limitMax, Wait: wait}
}

// Acquire blocks until the budget admits a request, respecting ctx.
// Daily quota exhaustion is returned immediately.
func (b *Budget) Acquire(ctx context.Context, estimatedTokens int64) error {
	for {
		err := b.CheckAndIncrement(ctx, estimatedTokens)
		if err == nil {
			return nil
		}

		var throttle *ThrottleError
		if !errors.As(err, &throttle) || throttle.Daily() {
			return err
		}

		b.logger.Warn("rate limit approaching, throttling", "limit", throttle.Limit, "wait", throttle.Wait)
		select {
		case <-time.After(throttle.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Usage returns the current counters (rpm, tpm, rpd)
func (b *Budget) Usage(ctx context.Context) (int64, int64, int64, error) {
	keys := b.keys(b.now())

	pipe := b.redis.Pipeline()
	rpmCmd := pipe.Get(ctx, keys[0])
	tpmCmd := pipe.Get(ctx, keys[1])
	rpdCmd := pipe.Get(ctx, keys[2])

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, 0, fmt.Errorf("failed to get usage stats: %w", err)
	}

	rpm, _ := rpmCmd.Int64()
	tpm, _ := tpmCmd.Int64()
	rpd, _ := rpdCmd.Int64()
	return rpm, tpm, rpd, nil
}

// Limited wraps a ChatModel with a local token bucket and an optional shared budget
type Limited struct {
	next    ChatModel
	limiter *rate.Limiter
	budget  *Budget
}

// NewLimited wraps next. rps <= 0 disables the local limiter; budget may be nil.
func NewLimited(next ChatModel, rps float64, budget *Budget) *Limited {
	l := &Limited{next: next, budget: budget}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return l
}

// Name returns the wrapped provider name
func (l *Limited) Name() string { return l.next.Name() }

// Chat waits for capacity, then delegates
func (l *Limited) Chat(ctx context.Context, req Request, exec ToolExecutor) (*Response, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}
	if l.budget != nil {
		if err := l.budget.Acquire(ctx, estimateTokens(req)); err != nil {
			return nil, err
		}
	}
	return l.next.Chat(ctx, req, exec)
}

// estimateTokens approximates prompt size at four characters per token
func estimateTokens(req Request) int64 {
	n := len(req.System)
	for _, m := range req.Messages {
		n += len(m.Content)
	}
	return int64(n/4 + 1)
}
