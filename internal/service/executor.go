package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"iotexplorer/internal/adapter"
	"iotexplorer/internal/domain"
)

// DefaultCommandTimeout bounds a single device control call
const DefaultCommandTimeout = 10 * time.Second

// Result is the outcome of one executed command
type Result struct {
	MAC     string        `json:"mac"`
	Command string        `json:"command"`
	Success bool          `json:"success"`
	Value   any           `json:"value,omitempty"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
}

// Executor runs descriptor-table commands against registry devices
type Executor struct {
	registry *Registry
	client   *adapter.DeviceClient

	tableMu sync.RWMutex
	table   domain.DescriptorTable

	eventBus *EventBus
	logger   zerolog.Logger
	now      func() time.Time
}

// NewExecutor creates an executor. timeout bounds each device call.
func NewExecutor(registry *Registry, table domain.DescriptorTable, timeout time.Duration, eventBus *EventBus, logger zerolog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Executor{
		registry: registry,
		table:    table,
		client:   adapter.NewDeviceClient(timeout),
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// DescriptorTable returns the table commands are resolved against
func (e *Executor) DescriptorTable() domain.DescriptorTable {
	e.tableMu.RLock()
	defer e.tableMu.RUnlock()
	return e.table
}

// SetDescriptorTable replaces the table. Calls already past lookup keep
// the route they resolved.
func (e *Executor) SetDescriptorTable(table domain.DescriptorTable) {
	e.tableMu.Lock()
	e.table = table
	e.tableMu.Unlock()
}

// Execute sends command to the device identified by mac. domain.StatusQuery
// selects the status route. Failures are reported in Result.Err.
func (e *Executor) Execute(ctx context.Context, mac, command string) (result Result) {
	start := e.now()
	result = Result{MAC: mac, Command: command}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Value = nil
			result.Err = fmt.Errorf("execute %s on %s: panic: %v", command, mac, r)
			e.logger.Error().Str("mac", mac).Str("command", command).Interface("panic", r).Msg("Command panicked")
		}
		result.Elapsed = e.now().Sub(start)
	}()

	device := e.registry.Get(mac)
	if device == nil {
		result.Err = domain.NewError(domain.ErrDeviceNotFound, "execute", mac, nil)
		return result
	}
	result.MAC = device.MAC()

	address, deviceType, available := device.Target()

	descriptor, err := e.DescriptorTable().Lookup(deviceType)
	if err != nil {
		result.Err = err
		return result
	}
	route, err := descriptor.Route(command)
	if err != nil {
		result.Err = err
		return result
	}

	if !available {
		result.Err = domain.NewError(domain.ErrDeviceUnavailable, "execute "+command, result.MAC, nil)
		return result
	}

	url := "http://" + address + route.Path()
	resp, err := e.client.Do(ctx, route.HTTPMethod(), url)
	if err != nil {
		result.Err = err
		// The caller gave up; that says nothing about the device
		if ctx.Err() != nil {
			return result
		}
		e.unreachable(device, command, err)
		return result
	}

	if command != domain.StatusQuery {
		if status, ok := resp.Status(); ok && status != adapter.StatusSuccessful {
			result.Err = domain.NewError(domain.ErrProtocol, "execute "+command, result.MAC,
				fmt.Errorf("device reported status %q", status))
			return result
		}
	}

	value, ok := resp.Fields[route.Field]
	if !ok {
		err := domain.NewError(domain.ErrProtocol, "execute "+command, result.MAC,
			fmt.Errorf("field %q missing from response", route.Field))
		e.unreachable(device, command, err)
		result.Err = err
		return result
	}

	device.RecordStatus(value, e.now())
	result.Success = true
	result.Value = value

	e.publish(NewEvent(EventDeviceState, map[string]interface{}{
		"mac":     result.MAC,
		"command": command,
		"value":   value,
	}))
	return result
}

// ExecuteMain runs the command the device declares as its primary action
func (e *Executor) ExecuteMain(ctx context.Context, mac string) Result {
	device := e.registry.Get(mac)
	if device == nil {
		return Result{MAC: mac, Err: domain.NewError(domain.ErrDeviceNotFound, "execute main command", mac, nil)}
	}

	command := device.MainCommand()
	if command == "" {
		return Result{MAC: device.MAC(), Err: domain.NewError(domain.ErrLookup, "execute main command", device.MAC(),
			fmt.Errorf("device declares no main command"))}
	}
	return e.Execute(ctx, device.MAC(), command)
}

// RefreshStatuses queries the status route of every available device, at most
// limit at a time.
func (e *Executor) RefreshStatuses(ctx context.Context, limit int) []Result {
	macs := e.registry.AvailableMACs()
	results := make([]Result, len(macs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, mac := range macs {
		g.Go(func() error {
			results[i] = e.Execute(ctx, mac, domain.StatusQuery)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			e.logger.Debug().Err(r.Err).Str("mac", r.MAC).Msg("Status refresh failed")
		}
	}
	return results
}

func (e *Executor) unreachable(device *domain.Device, command string, err error) {
	e.logger.Warn().Err(err).Str("mac", device.MAC()).Str("command", command).Msg("Device call failed")
	if device.MarkUnreachable(e.now()) {
		e.publish(NewEvent(EventDeviceUnavailable, device.Snapshot()))
	}
}

func (e *Executor) publish(event Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}
