package handlers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldown is a token bucket per user so one person can't flood the pool with commands.
type cooldown struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	users   map[string]*userBucket
	now     func() time.Time
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newCooldown(perSecond float64, burst int) *cooldown {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(perSecond)
	if perSecond <= 0 {
		lim = rate.Inf
	}
	return &cooldown{
		limit:   lim,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		users:   make(map[string]*userBucket),
		now:     time.Now,
	}
}

func (c *cooldown) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	b, ok := c.users[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(c.limit, c.burst)}
		c.users[userID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// sweep forgets users that have been quiet for a while.
func (c *cooldown) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.idleTTL)
	n := 0
	for id, b := range c.users {
		if b.lastSeen.Before(cutoff) {
			delete(c.users, id)
			n++
		}
	}
	return n
}
