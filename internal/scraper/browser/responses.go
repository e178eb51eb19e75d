package browser

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"PharmacyScanner/internal/scraper"
)

// responseLog records the URLs of network responses a page received, in
// arrival order. Waiters consume matches from a cursor so two consecutive
// waits for the same pattern need two responses.
type responseLog struct {
	mu     sync.Mutex
	urls   []string
	cursor int
	notify chan struct{}
}

func newResponseLog() *responseLog {
	return &responseLog{notify: make(chan struct{})}
}

func (r *responseLog) add(url string) {
	r.mu.Lock()
	r.urls = append(r.urls, url)
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
}

// match looks for pattern past the cursor. On a miss it returns the channel
// closed by the next add.
func (r *responseLog) match(pattern *regexp.Regexp) (bool, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := r.cursor; i < len(r.urls); i++ {
		if pattern.MatchString(r.urls[i]) {
			r.cursor = i + 1
			return true, nil
		}
	}
	return false, r.notify
}

func (r *responseLog) wait(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		ok, next := r.match(pattern)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: no response matching %s within %s", scraper.ErrNetworkWaitTimeout, pattern, timeout)
		case <-next:
		}
	}
}

func (r *responseLog) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}
