package logging

import (
	"sync"
	"time"
)

// Limiter suppresses repeated log lines per key. A key is allowed at most
// once per interval; suppressed occurrences are counted and reported with
// the next allowed line.
type Limiter struct {
	mu         sync.Mutex
	interval   time.Duration
	last       map[string]time.Time
	suppressed map[string]int
}

// NewLimiter creates a limiter allowing one line per key per interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		interval:   interval,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Allow reports whether a line for key may be logged at now. When it
// returns true it also returns how many lines were suppressed since the
// previous allowed one.
func (l *Limiter) Allow(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		l.suppressed[key]++
		return false, 0
	}
	n := l.suppressed[key]
	l.last[key] = now
	delete(l.suppressed, key)
	return true, n
}
