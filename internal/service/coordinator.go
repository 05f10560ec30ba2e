package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"iotexplorer/internal/adapter"
	"iotexplorer/internal/domain"
	"iotexplorer/internal/repository"
)

// Mode is the coordinator's polling cadence
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeFast   Mode = "fast"
)

// Coordinator defaults
const (
	DefaultBaseInterval    = 100 * time.Second
	DefaultFastInterval    = 30 * time.Second
	DefaultMissedThreshold = 3
	DefaultMaxConcurrent   = 16

	persistTimeout = 5 * time.Second
)

// CoordinatorConfig holds the discovery loop settings
type CoordinatorConfig struct {
	BaseInterval    time.Duration
	FastInterval    time.Duration
	MissedThreshold int
	MaxConcurrent   int
	// ScanTimeout is the discovery listen window (0 = scanner default)
	ScanTimeout time.Duration
	// PollStatus refreshes every available device's status after a tick
	PollStatus bool
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.BaseInterval <= 0 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.FastInterval <= 0 {
		c.FastInterval = DefaultFastInterval
	}
	if c.MissedThreshold <= 0 {
		c.MissedThreshold = DefaultMissedThreshold
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
}

// CoordinatorState is a copy of the loop's bookkeeping
type CoordinatorState struct {
	Mode        Mode          `json:"mode"`
	FastMode    bool          `json:"fast_mode"`
	Interval    time.Duration `json:"interval"`
	MissedCount int           `json:"missed_count"`
	Ticks       uint64        `json:"ticks"`
	LastTick    *time.Time    `json:"last_tick,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Devices     int           `json:"devices"`
}

// TickReport summarises one tick
type TickReport struct {
	Responders   int             `json:"responders"`
	Observations int             `json:"observations"`
	Result       ReconcileResult `json:"result"`
	Mode         Mode            `json:"mode"`
	Interval     time.Duration   `json:"interval"`
	Duration     time.Duration   `json:"duration"`
}

// Coordinator drives discovery: scan, resolve and fetch every responder,
// reconcile the registry, then pick the next interval.
type Coordinator struct {
	scanner  adapter.Scanner
	resolver adapter.Resolver
	fetcher  adapter.Fetcher
	registry *Registry
	executor *Executor
	store    repository.DeviceStore
	eventBus *EventBus
	config   CoordinatorConfig
	logger   zerolog.Logger
	now      func() time.Time

	// tickMu serialises ticks and manual scans
	tickMu sync.Mutex

	mu    sync.RWMutex
	state CoordinatorState

	trigger chan struct{}
}

// NewCoordinator creates a coordinator. executor and store may be nil.
func NewCoordinator(
	config CoordinatorConfig,
	scanner adapter.Scanner,
	resolver adapter.Resolver,
	fetcher adapter.Fetcher,
	registry *Registry,
	executor *Executor,
	store repository.DeviceStore,
	eventBus *EventBus,
	logger zerolog.Logger,
) *Coordinator {
	config.applyDefaults()
	return &Coordinator{
		scanner:  scanner,
		resolver: resolver,
		fetcher:  fetcher,
		registry: registry,
		executor: executor,
		store:    store,
		eventBus: eventBus,
		config:   config,
		logger:   logger,
		now:      time.Now,
		state: CoordinatorState{
			Mode:     ModeNormal,
			Interval: config.BaseInterval,
		},
		trigger: make(chan struct{}, 1),
	}
}

// Registry returns the device registry the coordinator maintains
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Seed loads persisted devices into the registry
func (c *Coordinator) Seed(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	snapshots, err := c.store.ListDevices(ctx)
	if err != nil {
		return 0, err
	}
	n := c.registry.Seed(snapshots)
	c.logger.Info().Int("devices", n).Msg("Seeded registry from store")
	return n, nil
}

// Run ticks immediately and then after every Interval until ctx is done.
// TriggerTick starts a tick early.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().
		Dur("base_interval", c.config.BaseInterval).
		Dur("fast_interval", c.config.FastInterval).
		Int("missed_threshold", c.config.MissedThreshold).
		Msg("Coordinator started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Coordinator stopped")
			return nil
		case <-timer.C:
		case <-c.trigger:
		}

		if _, err := c.Tick(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("Tick failed")
		}
		timer.Reset(c.State().Interval)
	}
}

// TriggerTick asks Run to tick now. It never blocks; a pending trigger
// absorbs further requests.
func (c *Coordinator) TriggerTick() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// State returns a copy of the coordinator's bookkeeping
func (c *Coordinator) State() CoordinatorState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.Devices = c.registry.Len()
	return s
}

// ScanOnce runs a bare scan and returns the responder IPs without touching
// the registry.
func (c *Coordinator) ScanOnce(ctx context.Context) ([]net.IP, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.scanner.Scan(ctx, c.config.ScanTimeout)
}

// Tick runs one discovery cycle. A scanner failure is returned wrapped in
// domain.ErrCycleFailed, but reconciliation still runs with no observations
// so availability keeps decaying. A tick whose ctx ends before reconciliation
// is abandoned: the registry, the mode and the store are left untouched.
func (c *Coordinator) Tick(ctx context.Context) (TickReport, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	start := c.now()

	var (
		observations []domain.Observation
		responders   int
		cycleErr     error
	)

	ips, err := c.scanner.Scan(ctx, c.config.ScanTimeout)
	if ctx.Err() != nil {
		return c.abandon(start, len(ips), ctx.Err())
	}
	if err != nil {
		cycleErr = domain.NewError(domain.ErrCycleFailed, "tick", "", err)
	} else {
		responders = len(ips)
		observations = c.observe(ctx, ips)
	}

	// Responders skipped because ctx ended were not missed
	if ctx.Err() != nil {
		return c.abandon(start, responders, ctx.Err())
	}

	result := c.registry.Reconcile(observations, c.config.MissedThreshold, c.now())
	c.publishResult(result)

	mode, interval := c.advance(start, result, cycleErr)

	if c.executor != nil && c.config.PollStatus {
		c.executor.RefreshStatuses(ctx, c.config.MaxConcurrent)
	}

	// The reconciled state is saved even if ctx ended during the refresh
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	c.persist(persistCtx)
	cancel()

	report := TickReport{
		Responders:   responders,
		Observations: len(observations),
		Result:       result,
		Mode:         mode,
		Interval:     interval,
		Duration:     c.now().Sub(start),
	}

	if cycleErr != nil {
		c.publish(NewEvent(EventCycleFailed, map[string]interface{}{
			"error": cycleErr.Error(),
		}))
	}
	c.publish(NewEvent(EventTickCompleted, report))

	c.logger.Debug().
		Int("responders", report.Responders).
		Int("observations", report.Observations).
		Int("added", len(result.Added)).
		Int("missed", result.MissedCount()).
		Str("mode", string(mode)).
		Dur("next", interval).
		Msg("Tick completed")

	return report, cycleErr
}

// abandon reports a tick cut short by its context without reconciling
func (c *Coordinator) abandon(start time.Time, responders int, cause error) (TickReport, error) {
	err := domain.NewError(domain.ErrCycleFailed, "tick", "", cause)

	c.mu.Lock()
	c.state.LastError = err.Error()
	mode, interval := c.state.Mode, c.state.Interval
	c.mu.Unlock()

	c.logger.Warn().Err(cause).Int("responders", responders).Msg("Tick abandoned")
	c.publish(NewEvent(EventCycleFailed, map[string]interface{}{
		"error": err.Error(),
	}))

	return TickReport{
		Responders: responders,
		Mode:       mode,
		Interval:   interval,
		Duration:   c.now().Sub(start),
	}, err
}

// observe resolves and fetches every responder concurrently. Responders that
// fail either step are dropped from this tick.
func (c *Coordinator) observe(ctx context.Context, ips []net.IP) []domain.Observation {
	if len(ips) == 0 {
		return nil
	}

	slots := make([]*domain.Observation, len(ips))

	var g errgroup.Group
	g.SetLimit(min(len(ips), c.config.MaxConcurrent))

	for i, ip := range ips {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			obs, err := c.observeOne(ctx, ip)
			if err != nil {
				c.logger.Debug().Err(err).Str("ip", ip.String()).Msg("Skipping responder")
				return nil
			}
			slots[i] = obs
			return nil
		})
	}
	_ = g.Wait()

	observations := make([]domain.Observation, 0, len(slots))
	for _, obs := range slots {
		if obs != nil {
			observations = append(observations, *obs)
		}
	}
	return observations
}

func (c *Coordinator) observeOne(ctx context.Context, ip net.IP) (*domain.Observation, error) {
	mac, err := c.resolver.Resolve(ctx, ip)
	if err != nil {
		return nil, err
	}

	info, err := c.fetcher.Fetch(ctx, ip)
	if err != nil {
		return nil, err
	}

	// The link layer is authoritative for identity
	if info.MAC != "" && info.MAC != mac {
		c.logger.Debug().Str("ip", ip.String()).Str("resolved", mac).Str("reported", info.MAC).Msg("Device reports a different MAC")
	}

	return &domain.Observation{MAC: mac, IP: ip.String(), Info: *info}, nil
}

// advance records the tick and moves between NORMAL and FAST
func (c *Coordinator) advance(at time.Time, result ReconcileResult, cycleErr error) (Mode, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.state.Mode

	c.state.Ticks++
	c.state.LastTick = &at
	c.state.MissedCount = result.MissedCount()
	c.state.LastError = ""
	if cycleErr != nil {
		c.state.LastError = cycleErr.Error()
	}

	c.state.FastMode = len(result.Added) > 0 || c.state.MissedCount > 0
	if c.state.FastMode {
		c.state.Mode = ModeFast
		c.state.Interval = c.config.FastInterval
	} else {
		c.state.Mode = ModeNormal
		c.state.Interval = c.config.BaseInterval
	}

	if c.state.Mode != previous {
		c.logger.Info().Str("from", string(previous)).Str("to", string(c.state.Mode)).Dur("interval", c.state.Interval).Msg("Polling mode changed")
		c.publish(NewEvent(EventModeChanged, map[string]interface{}{
			"from":     previous,
			"to":       c.state.Mode,
			"interval": c.state.Interval.String(),
		}))
	}

	return c.state.Mode, c.state.Interval
}

func (c *Coordinator) publishResult(result ReconcileResult) {
	emit := func(eventType EventType, macs []string) {
		for _, mac := range macs {
			device := c.registry.Get(mac)
			if device == nil {
				continue
			}
			c.publish(NewEvent(eventType, device.Snapshot()))
		}
	}

	for _, mac := range result.Added {
		c.logger.Info().Str("mac", mac).Msg("Device discovered")
	}
	for _, mac := range result.BecameUnavailable {
		c.logger.Info().Str("mac", mac).Msg("Device unavailable")
	}

	emit(EventDeviceAdded, result.Added)
	emit(EventDeviceUpdated, result.Updated)
	emit(EventDeviceRecovered, result.Recovered)
	emit(EventDeviceUnavailable, result.BecameUnavailable)
}

// Persist saves the registry to the store once no tick is running
func (c *Coordinator) Persist(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.SaveDevices(ctx, c.registry.Snapshot())
}

func (c *Coordinator) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveDevices(ctx, c.registry.Snapshot()); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist devices")
	}
}

// Remove deletes a device from the registry and the store
func (c *Coordinator) Remove(ctx context.Context, mac string) error {
	device := c.registry.Get(mac)
	if device == nil {
		return domain.NewError(domain.ErrDeviceNotFound, "remove", mac, nil)
	}
	snapshot := device.Snapshot()

	c.registry.Remove(snapshot.MAC)
	if c.store != nil {
		if err := c.store.DeleteDevice(ctx, snapshot.MAC); err != nil {
			return fmt.Errorf("failed to delete device from store: %w", err)
		}
	}

	c.logger.Info().Str("mac", snapshot.MAC).Msg("Device removed")
	c.publish(NewEvent(EventDeviceRemoved, snapshot))
	return nil
}

func (c *Coordinator) publish(event Event) {
	if c.eventBus != nil {
		c.eventBus.Publish(event)
	}
}
