package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gopacket/gopacket/layers"
	"github.com/taniwha3/netwatch/internal/capture"
	"github.com/taniwha3/netwatch/internal/models"
	"github.com/taniwha3/netwatch/internal/protocol"
)

// fakeCaptureSource emits a fixed number of empty frames then blocks
// returning capture's timeout sentinel, mimicking a real Handle.Recv
// loop without opening pcap.
type fakeCaptureSource struct {
	mu        sync.Mutex
	remaining int
	closed    bool
}

func (f *fakeCaptureSource) Recv() (models.NetworkFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return models.NetworkFrame{}, capture.ErrTimeout
	}
	f.remaining--
	return models.NetworkFrame{RawBytes: []byte{}, Length: 0, InterfaceId: "eth0"}, nil
}

func (f *fakeCaptureSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type collectingSink struct {
	mu      sync.Mutex
	packets []models.PacketRecord
}

func (s *collectingSink) HandlePacket(p models.PacketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func TestPipeline_LifecycleTransitions(t *testing.T) {
	sink := &collectingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(sink, logger, 16)

	if p.State() != StateIdle {
		t.Fatalf("initial state = %v, want Idle", p.State())
	}

	src := &fakeCaptureSource{remaining: 0}
	parser := protocol.NewParser(layers.LayerTypeEthernet, nil)
	p.AddSource("eth0", src, parser)

	ctx := context.Background()
	p.Start(ctx, 2)
	if p.State() != StateRunning {
		t.Fatalf("state after Start = %v, want Running", p.State())
	}

	p.Stop(500 * time.Millisecond)
	if p.State() != StateStopped {
		t.Fatalf("state after Stop = %v, want Stopped", p.State())
	}
	if !src.closed {
		t.Error("Stop should close registered sources")
	}
}

func TestBoundedQueue_DropsOldestOnOverflow(t *testing.T) {
	q := newBoundedQueue(2)

	if dropped := q.push(models.NetworkFrame{Length: 1}); dropped {
		t.Fatal("first push should not drop")
	}
	if dropped := q.push(models.NetworkFrame{Length: 2}); dropped {
		t.Fatal("second push should not drop")
	}
	if dropped := q.push(models.NetworkFrame{Length: 3}); !dropped {
		t.Fatal("third push into a full queue of capacity 2 should drop the oldest")
	}

	first := <-q.ch
	if first.Length != 2 {
		t.Errorf("expected oldest frame (Length=1) to have been dropped, got Length=%d as the surviving head", first.Length)
	}
}
