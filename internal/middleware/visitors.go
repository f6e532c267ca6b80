package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client key. A bucket untouched for a
// whole window has refilled completely, so dropping it changes nothing.
type visitors struct {
	mu      sync.Mutex
	entries map[string]*visitor
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newVisitors(requestsPerWindow int, window time.Duration) *visitors {
	if requestsPerWindow < 1 {
		requestsPerWindow = 1
	}
	v := &visitors{
		entries: make(map[string]*visitor),
		limit:   rate.Every(window / time.Duration(requestsPerWindow)),
		burst:   requestsPerWindow,
		idle:    window,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go v.cleanup()
	return v
}

func (v *visitors) get(key string, now time.Time) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	vis, ok := v.entries[key]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.entries[key] = vis
	}
	vis.lastSeen = now
	return vis.limiter
}

// take consumes a token for key. When the bucket is empty it reports how
// long until the next token.
func (v *visitors) take(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	now := v.now()
	limiter := v.get(key, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0, v.idle
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, 0, delay
	}
	return true, int(limiter.TokensAt(now)), 0
}

func (v *visitors) cleanup() {
	defer close(v.done)
	ticker := time.NewTicker(v.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.sweep()
		case <-v.stop:
			return
		}
	}
}

func (v *visitors) sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	dropped := 0
	for key, vis := range v.entries {
		if now.Sub(vis.lastSeen) >= v.idle {
			delete(v.entries, key)
			dropped++
		}
	}
	return dropped
}

func (v *visitors) close() {
	v.once.Do(func() {
		close(v.stop)
		<-v.done
	})
}
