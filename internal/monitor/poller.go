package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
)

// Option customises a Monitor or SSIDWatcher.
type Option func(*options)

type options struct {
	clock      clockwork.Clock
	log        logr.Logger
	maxHistory int
}

func buildOptions(opts []Option) options {
	o := options{
		clock:      clockwork.NewRealClock(),
		log:        logr.Discard(),
		maxHistory: defaultHistorySize,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithClock replaces the clock driving the polling ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithHistorySize bounds the number of statuses kept in memory.
func WithHistorySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHistory = n
		}
	}
}

// poller owns one ticker and the goroutine reading it. A halted poller never
// fires again; Start on the owning component creates a fresh one.
type poller struct {
	ctx    context.Context
	cancel context.CancelFunc
	ticker clockwork.Ticker
	stop   chan struct{}
	once   sync.Once
}

func newPoller(parent context.Context, clock clockwork.Clock, interval time.Duration) *poller {
	ctx, cancel := context.WithCancel(parent)
	return &poller{
		ctx:    ctx,
		cancel: cancel,
		ticker: clock.NewTicker(interval),
		stop:   make(chan struct{}),
	}
}

func (p *poller) halt() {
	p.once.Do(func() {
		close(p.stop)
		p.ticker.Stop()
		p.cancel()
	})
}

func (p *poller) halted() bool {
	select {
	case <-p.stop:
		return true
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

func (p *poller) loop(tick func()) {
	for {
		select {
		case <-p.stop:
			return
		case <-p.ctx.Done():
			return
		case <-p.ticker.Chan():
			tick()
		}
	}
}
