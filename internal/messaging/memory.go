package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
)

// MemoryTransport is an in-process Transport for single-binary development runs and tests.
// Unacked deliveries are returned to the queue by Nack only; there is no lease expiry.
type MemoryTransport struct {
	mu       sync.Mutex
	queues   map[string][]*memoryEntry
	inflight map[string]*memoryEntry
	dead     []*Delivery
	seq      int
	signal   chan struct{}
}

type memoryEntry struct {
	raw      []byte
	attempts int
}

// NewMemoryTransport creates an empty transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		queues:   make(map[string][]*memoryEntry),
		inflight: make(map[string]*memoryEntry),
		signal:   make(chan struct{}, 1),
	}
}

// Publish enqueues env.
func (m *MemoryTransport) Publish(_ context.Context, queue string, env *Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	m.PublishRaw(queue, raw)
	return nil
}

// PublishRaw enqueues raw bytes as-is, which lets tests inject malformed payloads.
func (m *MemoryTransport) PublishRaw(queue string, raw []byte) {
	m.mu.Lock()
	m.queues[queue] = append(m.queues[queue], &memoryEntry{raw: raw})
	m.mu.Unlock()
	m.notify()
}

func (m *MemoryTransport) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Receive pops the head of queue.
func (m *MemoryTransport) Receive(ctx context.Context, queue string) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[queue]
	if len(q) == 0 {
		return nil, ErrNoMessage
	}
	entry := q[0]
	m.queues[queue] = q[1:]
	entry.attempts++
	m.seq++
	receipt := queue + ":" + strconv.Itoa(m.seq)
	m.inflight[receipt] = entry
	return &Delivery{
		Envelope: DecodeEnvelope(entry.raw),
		Raw:      entry.raw,
		Queue:    queue,
		Attempt:  entry.attempts,
		Receipt:  receipt,
	}, nil
}

func (m *MemoryTransport) take(d *Delivery) (*memoryEntry, error) {
	if d == nil {
		return nil, nil
	}
	entry, ok := m.inflight[d.Receipt]
	if !ok {
		return nil, errors.New("unknown receipt " + d.Receipt)
	}
	delete(m.inflight, d.Receipt)
	return entry, nil
}

// Ack forgets the delivery.
func (m *MemoryTransport) Ack(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.take(d)
	return err
}

// Nack puts the delivery back at the tail of its queue.
func (m *MemoryTransport) Nack(_ context.Context, d *Delivery, _ error) error {
	m.mu.Lock()
	entry, err := m.take(d)
	if err == nil && entry != nil {
		m.queues[d.Queue] = append(m.queues[d.Queue], entry)
	}
	m.mu.Unlock()
	m.notify()
	return err
}

// DeadLetter parks the delivery; see DeadLetters.
func (m *MemoryTransport) DeadLetter(_ context.Context, d *Delivery, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.take(d)
	if err == nil && entry != nil {
		m.dead = append(m.dead, d)
	}
	return err
}

// WaitForMessage blocks until something is published or ctx ends.
func (m *MemoryTransport) WaitForMessage(ctx context.Context, _ string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.signal:
		return nil
	}
}

// Len returns the number of queued, not in-flight, messages in queue.
func (m *MemoryTransport) Len(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[queue])
}

// InFlight returns the number of received but unsettled deliveries.
func (m *MemoryTransport) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// DeadLetters returns parked deliveries.
func (m *MemoryTransport) DeadLetters() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Delivery(nil), m.dead...)
}
