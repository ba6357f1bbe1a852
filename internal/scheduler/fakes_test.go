package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"threadsched/internal/transport"
)

// fakeClock advances instantly on each Sleep. After limit sleeps it calls
// onLimit (if set) and then blocks until ctx ends.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	limit   int
	onLimit func()
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	if len(c.sleeps) >= c.limit {
		c.mu.Unlock()
		if c.onLimit != nil {
			c.onLimit()
		}
		<-ctx.Done()
		return ctx.Err()
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakePlatform struct {
	channels map[string]*fakeChannel
}

func (p *fakePlatform) Name() string { return "fake" }
func (p *fakePlatform) Close() error { return nil }

func (p *fakePlatform) ResolveChannel(_ context.Context, id string) (transport.Channel, error) {
	ch, ok := p.channels[id]
	if !ok {
		return nil, fmt.Errorf("fake: channel %s: %w", id, transport.ErrNotFound)
	}
	return ch, nil
}

type fakeChannel struct {
	id       string
	threaded bool

	mu      sync.Mutex
	seq     int
	msgs    map[string]*fakeMessage
	sent    []string
	sendErr error
	// sendErrs fail the next sends in order, before sendErr is consulted.
	sendErrs  []error
	threadErr error
	pinErr    error
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, threaded: true, msgs: map[string]*fakeMessage{}}
}

func (c *fakeChannel) ID() string                      { return c.id }
func (c *fakeChannel) Name() string                    { return "chan-" + c.id }
func (c *fakeChannel) Kind() string                    { return "text" }
func (c *fakeChannel) SupportsThreadedMessaging() bool { return c.threaded }

func (c *fakeChannel) SendMessage(_ context.Context, text string) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		return nil, err
	}
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.seq++
	m := &fakeMessage{id: strconv.Itoa(c.seq), ch: c}
	c.msgs[m.id] = m
	c.sent = append(c.sent, text)
	return m, nil
}

func (c *fakeChannel) FetchMessage(_ context.Context, id string) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.msgs[id]
	if !ok {
		return nil, fmt.Errorf("fake: message %s: %w", id, transport.ErrNotFound)
	}
	return m, nil
}

// addPinned seeds a message that was pinned before the process started.
func (c *fakeChannel) addPinned(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs[id] = &fakeMessage{id: id, ch: c, pinned: true}
}

func (c *fakeChannel) pinned() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]bool{}
	for id, m := range c.msgs {
		out[id] = m.pinned
	}
	return out
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeMessage struct {
	id      string
	ch      *fakeChannel
	pinned  bool
	threads []string
}

func (m *fakeMessage) ID() string { return m.id }

func (m *fakeMessage) StartThread(_ context.Context, title string) (transport.Thread, error) {
	m.ch.mu.Lock()
	defer m.ch.mu.Unlock()
	if m.ch.threadErr != nil {
		return transport.Thread{}, m.ch.threadErr
	}
	m.threads = append(m.threads, title)
	return transport.Thread{ID: "t" + m.id, Name: title}, nil
}

func (m *fakeMessage) Pin(context.Context) error {
	m.ch.mu.Lock()
	defer m.ch.mu.Unlock()
	if m.ch.pinErr != nil {
		return m.ch.pinErr
	}
	m.pinned = true
	return nil
}

func (m *fakeMessage) Unpin(context.Context) error {
	m.ch.mu.Lock()
	defer m.ch.mu.Unlock()
	m.pinned = false
	return nil
}
