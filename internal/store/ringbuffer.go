package store

import "github.com/taniwha3/netwatch/internal/models"

// ringBufferCapacity bounds the writer's in-memory overflow buffer used
// while the store is degraded (spec.md §7, "retry once then
// buffer-and-degrade"). Once full, the oldest buffered record is
// dropped to make room for the newest, matching the capture
// pipeline's own drop-oldest policy under backpressure.
const ringBufferCapacity = 10000

// packetRing is a fixed-capacity FIFO of packet records. It is not
// safe for concurrent use; PacketWriter serializes all access to it
// from its own run loop.
type packetRing struct {
	buf   []models.PacketRecord
	head  int
	count int
}

func newPacketRing() *packetRing {
	return &packetRing{buf: make([]models.PacketRecord, ringBufferCapacity)}
}

// Push appends p to the ring, dropping the oldest buffered record if
// the ring is already at capacity.
func (r *packetRing) Push(p models.PacketRecord) {
	tail := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		r.buf[r.head] = models.PacketRecord{}
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	r.buf[tail] = p
	r.count++
}

// PushAll pushes every record in batch, in order.
func (r *packetRing) PushAll(batch []models.PacketRecord) {
	for _, p := range batch {
		r.Push(p)
	}
}

// Len returns the number of records currently buffered.
func (r *packetRing) Len() int {
	return r.count
}

// Drain returns every buffered record, oldest first, and empties the
// ring.
func (r *packetRing) Drain() []models.PacketRecord {
	if r.count == 0 {
		return nil
	}
	out := make([]models.PacketRecord, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = 0
	r.count = 0
	return out
}
