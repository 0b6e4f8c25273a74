package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrForbidden marks an explicit authorization denial. For a
// subscription it is terminal: the subscriber should not receive
// anything on the topic at all. Transport failures while asking the
// cluster are wrapped differently and are retryable.
var ErrForbidden = errors.New("not allowed to watch this resource")

// AccessReviewer asks the cluster whether the identity behind token may
// watch a resource. (false, nil) is an explicit denial; a non-nil error
// is a transport failure.
type AccessReviewer interface {
	CanWatchResource(ctx context.Context, token, group, resource, namespace, name string) (bool, error)
}

// Checker answers "may this token watch this resource" with grant
// caching in front of live cluster access reviews.
type Checker struct {
	reviewer AccessReviewer
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger

	// now is overridable in tests.
	now func() time.Time

	// onResult, if set, observes check outcomes (hit, miss, denied, error).
	onResult func(result string)
}

// NewChecker creates a Checker. ttl bounds how long a positive grant is
// trusted; the reference value is 10 minutes.
func NewChecker(reviewer AccessReviewer, cache Cache, ttl time.Duration, logger *slog.Logger) (*Checker, error) {
	if reviewer == nil {
		return nil, fmt.Errorf("access reviewer is nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	return &Checker{
		reviewer: reviewer,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With("component", "authz"),
		now:      time.Now,
	}, nil
}

// SetResultObserver registers a callback invoked with every check
// outcome, for metrics. Must be called before concurrent use.
func (c *Checker) SetResultObserver(fn func(result string)) {
	c.onResult = fn
}

// CheckPermission reports whether token may watch the given resource in
// namespace (optionally narrowed to name).
//
// A grant younger than the TTL answers from cache without a cluster
// round trip. An expired or missing entry triggers a live access
// review: denial returns ErrForbidden (and is never cached), transport
// failure returns a wrapped retryable error, and a grant is cached with
// the current time.
func (c *Checker) CheckPermission(ctx context.Context, ruid, token, group, resource, namespace, name string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if resource == "" {
		return fmt.Errorf("resource cannot be empty")
	}

	key := CacheKey(token, group, resource, namespace, name)

	if grantedAt, ok := c.cache.Get(key); ok {
		if c.now().Sub(grantedAt) < c.ttl {
			c.logger.Debug("permission grant cached", "ruid", ruid, "resource", resource, "namespace", namespace)
			c.observe("hit")
			return nil
		}
		// Expired: treat as absent and revalidate.
		c.cache.Delete(key)
	}

	c.logger.Debug("permission grant not cached, asking cluster",
		"ruid", ruid, "resource", resource, "namespace", namespace, "name", name)

	allowed, err := c.reviewer.CanWatchResource(ctx, token, group, resource, namespace, name)
	if err != nil {
		c.observe("error")
		return fmt.Errorf("access review unreachable: %w", err)
	}
	if !allowed {
		c.logger.Info("permission denied",
			"ruid", ruid, "group", group, "resource", resource, "namespace", namespace, "name", name)
		c.observe("denied")
		return ErrForbidden
	}

	c.cache.Put(key, c.now())
	c.logger.Debug("permission granted, caching", "ruid", ruid, "resource", resource, "namespace", namespace)
	c.observe("miss")
	return nil
}

// RunSweeper evicts expired grants every interval until ctx is
// cancelled, bounding cache growth independent of lookup traffic.
func (c *Checker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := c.now()
			evicted := c.cache.Sweep(start.Add(-c.ttl))
			c.logger.Info("permission cache sweep completed",
				"evicted", evicted,
				"duration", time.Since(start))
		}
	}
}

func (c *Checker) observe(result string) {
	if c.onResult != nil {
		c.onResult(result)
	}
}

// CacheKey builds the cache key from all check inputs. Only the token's
// signature segment is used, keeping full credentials out of memory
// dumps while still distinguishing tokens.
func CacheKey(token, group, resource, namespace, name string) string {
	sig := token
	if parts := strings.Split(token, "."); len(parts) == 3 {
		sig = parts[2]
	}
	return fmt.Sprintf("t:%s_g:%s_r:%s_ns:%s_n:%s", sig, group, resource, namespace, name)
}
