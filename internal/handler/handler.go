package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"iotexplorer/internal/codec"
	"iotexplorer/internal/domain"
	"iotexplorer/internal/service"
)

// Discovery is the coordinator surface exposed over HTTP
type Discovery interface {
	Tick(ctx context.Context) (service.TickReport, error)
	ScanOnce(ctx context.Context) ([]net.IP, error)
	State() service.CoordinatorState
	Remove(ctx context.Context, mac string) error
}

// Devices reads the registry
type Devices interface {
	Snapshot() []domain.DeviceSnapshot
	Get(mac string) *domain.Device
}

// Commands runs device commands
type Commands interface {
	Execute(ctx context.Context, mac, command string) service.Result
	ExecuteMain(ctx context.Context, mac string) service.Result
	DescriptorTable() domain.DescriptorTable
}

// DeviceHandler serves the device API
type DeviceHandler struct {
	discovery Discovery
	devices   Devices
	commands  Commands
	logger    zerolog.Logger
}

// NewDeviceHandler creates a device handler
func NewDeviceHandler(discovery Discovery, devices Devices, commands Commands, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		discovery: discovery,
		devices:   devices,
		commands:  commands,
		logger:    logger,
	}
}

// Register adds the API routes to mux
func (h *DeviceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", h.ListDevices)
	mux.HandleFunc("GET /api/devices/{mac}", h.GetDevice)
	mux.HandleFunc("DELETE /api/devices/{mac}", h.DeleteDevice)
	mux.HandleFunc("GET /api/devices/{mac}/status", h.GetStatus)
	mux.HandleFunc("POST /api/devices/{mac}/commands/{command}", h.RunCommand)
	mux.HandleFunc("POST /api/devices/{mac}/main", h.RunMainCommand)

	mux.HandleFunc("POST /api/discover", h.Discover)
	mux.HandleFunc("POST /api/scan", h.Scan)
	mux.HandleFunc("GET /api/coordinator", h.GetCoordinator)
	mux.HandleFunc("GET /api/device-types", h.ListDeviceTypes)

	mux.HandleFunc("GET /api/export/json", h.ExportJSON)
	mux.HandleFunc("GET /api/export/yaml", h.ExportYAML)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ListDevices returns the registry snapshot
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.devices.Snapshot(), http.StatusOK)
}

// GetDevice returns a single device
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	mac := r.PathValue("mac")
	device := h.devices.Get(mac)
	if device == nil {
		h.writeError(w, domain.NewError(domain.ErrDeviceNotFound, "get device", mac, nil))
		return
	}
	h.writeJSON(w, device.Snapshot(), http.StatusOK)
}

// DeleteDevice removes a device from the registry and the store
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.discovery.Remove(r.Context(), r.PathValue("mac")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus queries the device's status route
func (h *DeviceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.commands.Execute(r.Context(), r.PathValue("mac"), domain.StatusQuery))
}

// RunCommand executes a named command
func (h *DeviceHandler) RunCommand(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.commands.Execute(r.Context(), r.PathValue("mac"), r.PathValue("command")))
}

// RunMainCommand executes the device's main command
func (h *DeviceHandler) RunMainCommand(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.commands.ExecuteMain(r.Context(), r.PathValue("mac")))
}

// manualTickTimeout bounds a tick started over HTTP
const manualTickTimeout = time.Minute

// Discover runs one discovery tick and returns its report. The tick does not
// follow the request context: a client hanging up mid-tick must not abandon
// a cycle other callers are waiting on.
func (h *DeviceHandler) Discover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), manualTickTimeout)
	defer cancel()

	report, err := h.discovery.Tick(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, report, http.StatusOK)
}

// Scan lists responder IPs without touching the registry
func (h *DeviceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ips, err := h.discovery.ScanOnce(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	responders := make([]string, 0, len(ips))
	for _, ip := range ips {
		responders = append(responders, ip.String())
	}
	h.writeJSON(w, map[string]interface{}{"responders": responders}, http.StatusOK)
}

// GetCoordinator returns the coordinator state
func (h *DeviceHandler) GetCoordinator(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.discovery.State(), http.StatusOK)
}

// ListDeviceTypes returns the descriptor table
func (h *DeviceHandler) ListDeviceTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.commands.DescriptorTable(), http.StatusOK)
}

// ExportJSON exports the device list in the JSON device file format
func (h *DeviceHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=iot_explorer_devices.json")

	if err := codec.NewJSONCodec().ExportDevices(h.devices.Snapshot(), w); err != nil {
		h.logger.Error().Err(err).Msg("Failed to export JSON")
	}
}

// ExportYAML exports the device list as YAML
func (h *DeviceHandler) ExportYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", "attachment; filename=iot_explorer_devices.yaml")

	if err := codec.NewYAMLCodec().ExportDevices(h.devices.Snapshot(), w); err != nil {
		// Can't write error response as we already set headers
		h.logger.Error().Err(err).Msg("Failed to export YAML")
	}
}

func (h *DeviceHandler) writeResult(w http.ResponseWriter, result service.Result) {
	if result.Err != nil {
		h.writeError(w, result.Err)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

func (h *DeviceHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *DeviceHandler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn().Err(err).Int("status", status).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Details: err.Error(),
	}); encErr != nil {
		h.logger.Error().Err(encErr).Msg("Failed to encode error response")
	}
}

// StatusFor maps domain error kinds to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLookup):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrProtocol), errors.Is(err, domain.ErrCycleFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
