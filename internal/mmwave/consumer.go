package mmwave

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/vitals"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

// FrameSource is the subscription side of a serialmux.
type FrameSource interface {
	Subscribe() (string, <-chan *parse.Frame)
	Unsubscribe(string)
}

// FrameStore persists decoded frames. *db.DB implements it.
type FrameStore interface {
	RecordFrame(sessionID string, f *parse.Frame, receivedAt time.Time) (int64, error)
}

// ConsumerOptions wires a Consumer. Nil Store or Vitals skips that step.
type ConsumerOptions struct {
	SessionID string
	Store     FrameStore
	Vitals    *vitals.Tracker
	Clock     timeutil.Clock
	// StoreErrorLogEvery logs one in every N consecutive store failures.
	StoreErrorLogEvery int
}

// ConsumerStats counts what a Consumer has handled.
type ConsumerStats struct {
	Frames        uint64 `json:"frames"`
	Stored        uint64 `json:"stored"`
	StoreErrors   uint64 `json:"store_errors"`
	VitalsUpdates uint64 `json:"vitals_updates"`
}

// Consumer feeds published frames to the vitals tracker and the store.
type Consumer struct {
	src  FrameSource
	opts ConsumerOptions
	id   string
	ch   <-chan *parse.Frame

	frames, stored, storeErrors, vitalsUpdates atomic.Uint64
}

// NewConsumer subscribes immediately so no frame published after it
// returns is missed.
func NewConsumer(src FrameSource, opts ConsumerOptions) *Consumer {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.StoreErrorLogEvery <= 0 {
		opts.StoreErrorLogEvery = 100
	}
	id, ch := src.Subscribe()
	return &Consumer{src: src, opts: opts, id: id, ch: ch}
}

// Run handles frames until the source closes the subscription or ctx is
// done. Frames already buffered when ctx ends are still handled.
func (c *Consumer) Run(ctx context.Context) {
	defer c.src.Unsubscribe(c.id)
	for {
		select {
		case f, ok := <-c.ch:
			if !ok {
				Diagf("consumer: subscription closed after %d frames", c.frames.Load())
				return
			}
			c.handle(f)
		case <-ctx.Done():
			for {
				select {
				case f, ok := <-c.ch:
					if !ok {
						return
					}
					c.handle(f)
				default:
					return
				}
			}
		}
	}
}

func (c *Consumer) handle(f *parse.Frame) {
	c.frames.Add(1)
	if c.opts.Vitals != nil && c.opts.Vitals.Update(f) {
		c.vitalsUpdates.Add(1)
	}
	if c.opts.Store == nil {
		return
	}
	if _, err := c.opts.Store.RecordFrame(c.opts.SessionID, f, c.opts.Clock.Now()); err != nil {
		n := c.storeErrors.Add(1)
		if (n-1)%uint64(c.opts.StoreErrorLogEvery) == 0 {
			Opsf("failed to store frame %d (%d failures so far): %v", f.FrameNumber, n, err)
		}
		return
	}
	c.stored.Add(1)
	Tracef("stored frame %d", f.FrameNumber)
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Frames:        c.frames.Load(),
		Stored:        c.stored.Load(),
		StoreErrors:   c.storeErrors.Load(),
		VitalsUpdates: c.vitalsUpdates.Load(),
	}
}
