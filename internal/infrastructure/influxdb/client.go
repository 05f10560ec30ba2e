package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"iotexplorer/internal/config"
	"iotexplorer/internal/service"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
	pingTimeout          = 10 * time.Second
)

// pointWriter is the subset of api.WriteAPI the recorder uses
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Recorder turns bus events into time series points
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect opens a non-blocking write API after confirming the server answers
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger zerolog.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval.Duration()
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushInterval.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("%w: ping returned false", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}()

	return &Recorder{client: client, writer: writeAPI, logger: logger}, nil
}

func newRecorder(writer pointWriter, logger zerolog.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger}
}

// Write queues points for the next batch
func (r *Recorder) Write(points ...*write.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.writer == nil {
		return ErrNotConnected
	}
	for _, p := range points {
		if p != nil {
			r.writer.WritePoint(p)
		}
	}
	return nil
}

// HandleEvent records the points derived from one bus event
func (r *Recorder) HandleEvent(event service.Event) error {
	points := PointsFor(event)
	if len(points) == 0 {
		return nil
	}
	return r.Write(points...)
}

// Run records events until ctx is done or the channel closes
func (r *Recorder) Run(ctx context.Context, events <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := r.HandleEvent(event); err != nil {
				r.logger.Debug().Err(err).Str("event", string(event.Type)).Msg("Dropped metrics event")
			}
		}
	}
}

// Close flushes pending points and releases the client
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.writer != nil {
		r.writer.Flush()
	}
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
