// Package pipeline implements the capture pipeline (C8): a bounded
// queue connecting one C6 producer per interface with a C7 consumer
// worker pool, with drop-oldest backpressure and a cooperative
// lifecycle state machine, per spec.md §4.8.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taniwha3/netwatch/internal/capture"
	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/protocol"
)

// DefaultQueueCapacity is Q from spec.md §4.8.
const DefaultQueueCapacity = 4096

// DefaultDrainDeadline is how long Stop waits for its goroutines to
// exit before it logs a warning.
const DefaultDrainDeadline = 5 * time.Second

// State is the pipeline's lifecycle state, per spec.md §4.8.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Source abstracts one open capture handle so producers can be faked
// in tests without opening a real pcap device.
type Source interface {
	Recv() (models.NetworkFrame, error)
	Close()
}

// Sink receives decoded packets and connection updates from the
// consumer pool. The pipeline doesn't know about storage directly;
// it hands records to whatever Sink the caller wired in (typically
// internal/store's PacketWriter plus a connection tracker).
type Sink interface {
	HandlePacket(models.PacketRecord)
}

// Pipeline owns the bounded per-interface queues and the consumer
// worker pool that drains them through a protocol.Parser.
type Pipeline struct {
	capacity int
	sink     Sink
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	queues       map[models.InterfaceId]*boundedQueue
	drops        map[models.InterfaceId]*int64
	backpressure map[models.InterfaceId]*backpressureTracker
	sources      []boundSource
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

// New builds an idle Pipeline. Call AddSource for each interface to
// capture, then Start.
func New(sink Sink, logger *slog.Logger, capacity int) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Pipeline{
		capacity: capacity,
		sink:     sink,
		logger:   logger,
		state:        StateIdle,
		queues:       make(map[models.InterfaceId]*boundedQueue),
		drops:        make(map[models.InterfaceId]*int64),
		backpressure: make(map[models.InterfaceId]*backpressureTracker),
	}
}

// boundedQueue is a fixed-capacity ring channel with drop-oldest
// overflow policy: when full, the oldest enqueued frame is discarded
// to make room for the new one (spec.md §4.8).
type boundedQueue struct {
	ch chan models.NetworkFrame
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{ch: make(chan models.NetworkFrame, capacity)}
}

func (q *boundedQueue) push(frame models.NetworkFrame) (dropped bool) {
	select {
	case q.ch <- frame:
		return false
	default:
		// Full: drop the oldest to make room, per spec.md §4.8.
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- frame:
		default:
		}
		return true
	}
}

// AddSource registers a capture handle for one interface. Must be
// called before Start.
func (p *Pipeline) AddSource(id models.InterfaceId, src Source, parser *protocol.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues[id] = newBoundedQueue(p.capacity)
	var zero int64
	p.drops[id] = &zero
	p.backpressure[id] = newBackpressureTracker()
	p.sources = append(p.sources, boundSource{id: id, src: src, parser: parser})
}

type boundSource struct {
	id     models.InterfaceId
	src    Source
	parser *protocol.Parser
}

// DropCount returns how many frames have been dropped for the given
// interface due to queue overflow, surfaced in snapshots per spec.md
// §4.8.
func (p *Pipeline) DropCount(id models.InterfaceId) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if counter, ok := p.drops[id]; ok {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// QueueDepth returns how many frames are currently buffered for the
// given interface's capture queue, for health/metrics reporting.
func (p *Pipeline) QueueDepth(id models.InterfaceId) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.queues[id]; ok {
		return len(q.ch)
	}
	return 0
}

// InterfaceIds returns the interfaces currently registered with the
// pipeline, in registration order.
func (p *Pipeline) InterfaceIds() []models.InterfaceId {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]models.InterfaceId, len(p.sources))
	for i, bs := range p.sources {
		ids[i] = bs.id
	}
	return ids
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	return State(atomic.LoadInt32((*int32)(&p.state)))
}

func (p *Pipeline) setState(s State) {
	atomic.StoreInt32((*int32)(&p.state), int32(s))
}

// Start launches one producer goroutine per registered source and a
// worker pool of consumers draining every queue.
func (p *Pipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.setState(StateRunning)

	p.mu.Lock()
	sources := append([]boundSource(nil), p.sources...)
	p.mu.Unlock()

	for _, bs := range sources {
		bs := bs
		p.wg.Add(1)
		go p.produce(runCtx, bs)
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.consume(runCtx)
	}
}

func (p *Pipeline) produce(ctx context.Context, bs boundSource) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := bs.src.Recv()
		if err != nil {
			if capture.IsTimeout(err) {
				continue
			}
			p.logger.Warn("capture recv error", slog.String("interface", string(bs.id)), slog.Any("error", err))
			continue
		}

		// RawBytes is only valid until the next Recv call on this
		// handle (spec.md §4.6); copy it so it survives the hop to the
		// consumer pool.
		owned := make([]byte, len(frame.RawBytes))
		copy(owned, frame.RawBytes)
		frame.RawBytes = owned

		p.mu.Lock()
		q := p.queues[bs.id]
		counter := p.drops[bs.id]
		tracker := p.backpressure[bs.id]
		p.mu.Unlock()

		dropped := q.push(frame)
		if dropped {
			atomic.AddInt64(counter, 1)
		}
		if tracker != nil {
			tracker.Record(time.Now(), dropped)
		}
	}
}

func (p *Pipeline) consume(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.mu.Lock()
		queues := make([]*boundedQueue, 0, len(p.queues))
		parsers := make(map[models.InterfaceId]*protocol.Parser, len(p.sources))
		for _, bs := range p.sources {
			parsers[bs.id] = bs.parser
		}
		for _, q := range p.queues {
			queues = append(queues, q)
		}
		p.mu.Unlock()

		drained := false
		for _, q := range queues {
			select {
			case frame := <-q.ch:
				drained = true
				parser := parsers[frame.InterfaceId]
				if parser == nil {
					continue
				}
				rec, err := parser.Parse(frame)
				if err != nil {
					continue
				}
				p.sink.HandlePacket(rec)
			default:
			}
		}
		if !drained {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// Stop transitions to Draining, cancels the pipeline context and closes
// every source at once, then waits for the capture and consumer
// goroutines to exit. Frames still in the queues when the context is
// cancelled are not processed. If the goroutines have not exited within
// deadline, Stop logs a warning and keeps waiting; it returns only once
// they have all exited.
func (p *Pipeline) Stop(deadline time.Duration) {
	if deadline <= 0 {
		deadline = DefaultDrainDeadline
	}
	p.setState(StateDraining)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for _, bs := range p.sources {
		bs.src.Close()
	}
	p.mu.Unlock()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("pipeline drain deadline exceeded, forcing stop", slog.Duration("deadline", deadline))
	}

	<-done
	p.setState(StateStopped)
}
