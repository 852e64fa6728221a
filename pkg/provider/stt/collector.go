package stt

import (
	"strings"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// Collector accumulates transcripts arriving asynchronously from a vendor
// stream. Vendor read loops call Offer; the provider surfaces the latest
// partial from FeedAudio and the joined finals from EndStream.
// It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	partial   *types.Transcript
	finals    []types.Transcript
	spans     []int64
	fed       int
	done      chan struct{}
	closeOnce sync.Once
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

// Offer records a transcript produced by the vendor.
func (c *Collector) Offer(t types.Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	if t.IsFinal {
		c.finals = append(c.finals, t)
		c.partial = nil
		return
	}
	c.partial = &t
}

// Fed records that the audio chunk seq was sent to the vendor.
func (c *Collector) Fed(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fed++
	c.spans = append(c.spans, seq)
}

// TakePartial returns and clears the most recent unread partial, or nil.
func (c *Collector) TakePartial() *types.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.partial
	c.partial = nil
	if p != nil {
		p.SpanIDs = append([]int64(nil), c.spans...)
	}
	return p
}

// Close signals that the vendor stream has ended. Safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the vendor stream has ended.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Final joins every final transcript into one. It returns nil when no audio
// was fed. Confidence is the mean over the joined finals.
func (c *Collector) Final() *types.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fed == 0 {
		return nil
	}
	texts := make([]string, 0, len(c.finals))
	var conf float64
	for _, f := range c.finals {
		if f.Text == "" {
			continue
		}
		texts = append(texts, f.Text)
		conf += f.Confidence
	}
	if len(texts) > 0 {
		conf /= float64(len(texts))
	}
	return &types.Transcript{
		Text:       strings.Join(texts, " "),
		IsFinal:    true,
		Confidence: conf,
		Provenance: types.ProvenanceProvider,
		SpanIDs:    append([]int64(nil), c.spans...),
		Timestamp:  time.Now(),
	}
}
