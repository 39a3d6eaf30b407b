package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sqlworker/internal/infrastructure/config"
	"github.com/nerrad567/sqlworker/internal/worker"
)

const (
	defaultConnectTimeout = 10 * time.Second

	// defaultFlushPeriod is how often statement counts and queue depth
	// are written when Attach is called with a zero interval.
	defaultFlushPeriod = 10 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the client options.
	millisecondsPerSecond = 1000
)

// statementCounters accumulates per-kind statement counts between
// flushes. Counters are incremented on the dispatch goroutine and
// drained by the flusher.
type statementCounters struct {
	selects uint64
	inserts uint64
	updates uint64
	deletes uint64
}

// snapshotAndReset atomically drains all counters.
func (c *statementCounters) snapshotAndReset() map[string]uint64 {
	return map[string]uint64{
		"select": atomic.SwapUint64(&c.selects, 0),
		"insert": atomic.SwapUint64(&c.inserts, 0),
		"update": atomic.SwapUint64(&c.updates, 0),
		"delete": atomic.SwapUint64(&c.deletes, 0),
	}
}

// total sums a drained snapshot.
func total(counts map[string]uint64) uint64 {
	var sum uint64
	for _, v := range counts {
		sum += v
	}
	return sum
}

// Recorder writes statement throughput metrics to InfluxDB.
//
// Thread Safety: all methods are safe for concurrent use. Hook
// increments are atomic; point writes are batched by the client.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	counters statementCounters

	connected bool
	mu        sync.RWMutex

	onError func(err error)

	stop      chan struct{}
	closeOnce sync.Once
	flusherWG sync.WaitGroup
}

// Connect establishes a connection to the configured InfluxDB server
// and prepares the non-blocking write API.
func Connect(cfg config.InfluxDBConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
		stop:      make(chan struct{}),
	}

	go r.handleWriteErrors(writeAPI.Errors())

	return r, nil
}

// handleWriteErrors forwards async write failures to the error callback.
func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		r.mu.RLock()
		callback := r.onError
		r.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Attach registers counting hooks on w and starts the periodic flusher.
// A zero interval uses the default flush period. The returned handles
// allow detaching the hooks; the flusher itself stops on Close.
func (r *Recorder) Attach(w *worker.Worker, interval time.Duration) []worker.HookHandle {
	if interval <= 0 {
		interval = defaultFlushPeriod
	}

	handles := []worker.HookHandle{
		w.RegisterHook(worker.HookSelect, counterHook(&r.counters.selects)),
		w.RegisterHook(worker.HookInsert, counterHook(&r.counters.inserts)),
		w.RegisterHook(worker.HookUpdate, counterHook(&r.counters.updates)),
		w.RegisterHook(worker.HookDelete, counterHook(&r.counters.deletes)),
	}

	r.flusherWG.Add(1)
	go r.flushLoop(w, interval)

	return handles
}

// counterHook builds a hook that increments one atomic counter.
func counterHook(counter *uint64) worker.Hook {
	return func(string, []any) {
		atomic.AddUint64(counter, 1)
	}
}

// flushLoop periodically writes accumulated counts and queue depth.
func (r *Recorder) flushLoop(w *worker.Worker, interval time.Duration) {
	defer r.flusherWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.writeSnapshot(w)
			return
		case <-ticker.C:
			r.writeSnapshot(w)
		}
	}
}

// writeSnapshot drains the counters and writes the metric points.
func (r *Recorder) writeSnapshot(w *worker.Worker) {
	counts := r.counters.snapshotAndReset()

	if total(counts) > 0 {
		fields := make(map[string]interface{}, len(counts))
		for kind, count := range counts {
			fields[kind] = int64(count)
		}
		r.WritePoint("statements", nil, fields)
	}

	r.WritePoint("queue",
		nil,
		map[string]interface{}{"depth": int64(w.QueueLen())},
	)
}

// WritePoint writes a custom point. The write is non-blocking; data is
// batched and sent asynchronously.
func (r *Recorder) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	r.writeAPI.WritePoint(point)
}

// SetOnError sets a callback for asynchronous write failures.
func (r *Recorder) SetOnError(callback func(err error)) {
	r.mu.Lock()
	r.onError = callback
	r.mu.Unlock()
}

// IsConnected reports the recorder's connection state.
func (r *Recorder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Close stops the flusher, flushes pending writes and closes the client.
func (r *Recorder) Close() error {
	if r.client == nil {
		return nil
	}

	r.closeOnce.Do(func() {
		close(r.stop)
		r.flusherWG.Wait()

		r.mu.Lock()
		r.connected = false
		r.mu.Unlock()

		r.writeAPI.Flush()
		r.client.Close()
	})
	return nil
}
