package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/taniwha3/netwatch/internal/logging"
	"github.com/taniwha3/netwatch/internal/models"
)

// PacketWriter batches PacketRecords and flushes them to the Store on a
// size/time trigger, whichever comes first (spec.md §4.9). It owns the
// store's sole write path for packets; callers should not call
// Store.WritePackets directly once a PacketWriter is running.
//
// On a write failure the writer retries once immediately. If the retry
// also fails, the batch (and every subsequent one) spills into an
// in-memory ring buffer and the writer reports itself degraded until a
// write succeeds again, at which point the ring is replayed ahead of
// the new batch.
type PacketWriter struct {
	store    *Store
	logger   *slog.Logger
	batch    []models.PacketRecord
	in       chan models.PacketRecord
	done     chan struct{}
	size     int
	interval time.Duration

	ring     *packetRing
	degraded atomic.Bool
}

// NewPacketWriter starts the writer's background flush loop. Call
// Close to drain and stop it.
func NewPacketWriter(s *Store, logger *slog.Logger, batchSize int, batchInterval time.Duration) *PacketWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchInterval <= 0 {
		batchInterval = DefaultBatchInterval
	}
	w := &PacketWriter{
		store:    s,
		logger:   logger,
		in:       make(chan models.PacketRecord, batchSize*4),
		done:     make(chan struct{}),
		size:     batchSize,
		interval: batchInterval,
		ring:     newPacketRing(),
	}
	go w.run()
	return w
}

// Write enqueues a packet for the next flush. It never blocks the
// capture pipeline for longer than it takes to push onto the channel
// buffer; callers that need backpressure semantics use C8's own queue
// ahead of this one.
func (w *PacketWriter) Write(p models.PacketRecord) {
	w.in <- p
}

func (w *PacketWriter) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case p := <-w.in:
			w.batch = append(w.batch, p)
			if len(w.batch) >= w.size {
				w.flushBatch()
			}
		case <-ticker.C:
			w.flushBatch()
		case <-w.done:
			w.flushBatch()
			return
		}
	}
}

func (w *PacketWriter) flushBatch() {
	if len(w.batch) == 0 {
		return
	}
	batch := w.batch
	w.batch = nil

	if w.ring.Len() > 0 {
		batch = append(w.ring.Drain(), batch...)
	}

	start := time.Now()
	err := w.store.WritePackets(context.Background(), batch)
	if err != nil {
		logging.LogWriteError(w.logger, "packets", len(batch), 1, err)
		start = time.Now()
		err = w.store.WritePackets(context.Background(), batch)
	}

	if err != nil {
		logging.LogWriteError(w.logger, "packets", len(batch), 2, err)
		w.ring.PushAll(batch)
		w.degraded.Store(true)
		return
	}

	if w.degraded.Load() {
		w.degraded.Store(false)
		w.logger.Info("packet writer recovered from degraded state")
	}
	logging.LogWrite(w.logger, "packets", len(batch), 1, 0, time.Since(start).Milliseconds())
}

// Degraded reports whether the writer has fallen back to its in-memory
// overflow ring after repeated write failures.
func (w *PacketWriter) Degraded() bool {
	return w.degraded.Load()
}

// BufferedCount returns how many records are currently sitting in the
// overflow ring, awaiting a successful write to replay them.
func (w *PacketWriter) BufferedCount() int {
	return w.ring.Len()
}

// Close stops the flush loop, flushing any buffered packets first.
func (w *PacketWriter) Close() {
	close(w.done)
}
