package domain

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// StatusQuery is the command name that selects a descriptor's status route.
const StatusQuery = "status"

// Route describes one HTTP call against a device and the JSON field holding
// its result.
type Route struct {
	Route  string `json:"route" yaml:"route"`
	Method string `json:"method" yaml:"method"`
	Field  string `json:"status_in_response" yaml:"status_in_response"`
}

// HTTPMethod returns the upper-cased method, defaulting to GET.
func (r Route) HTTPMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Path returns the route with a guaranteed leading slash.
func (r Route) Path() string {
	if strings.HasPrefix(r.Route, "/") {
		return r.Route
	}
	return "/" + r.Route
}

func (r Route) validate() error {
	if strings.TrimSpace(r.Route) == "" {
		return fmt.Errorf("route is empty")
	}
	if strings.TrimSpace(r.Field) == "" {
		return fmt.Errorf("status_in_response is empty")
	}
	switch r.HTTPMethod() {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q", r.Method)
	}
	return nil
}

// TypeDescriptor is the declarative control surface of one device type.
type TypeDescriptor struct {
	Status   Route             `json:"status" yaml:"status"`
	Commands map[string]Route  `json:"commands,omitempty" yaml:"commands,omitempty"`
	Images   map[string]string `json:"imgs,omitempty" yaml:"imgs,omitempty"`
}

// Route resolves a command name. StatusQuery selects the status route.
func (d TypeDescriptor) Route(command string) (Route, error) {
	if command == StatusQuery {
		return d.Status, nil
	}
	r, ok := d.Commands[command]
	if !ok {
		return Route{}, NewError(ErrLookup, "lookup command", command, nil)
	}
	return r, nil
}

// CommandNames returns the declared command names, sorted.
func (d TypeDescriptor) CommandNames() []string {
	names := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DescriptorTable maps device type names to their descriptors.
type DescriptorTable map[string]TypeDescriptor

// Lookup returns the descriptor for a device type.
func (t DescriptorTable) Lookup(deviceType string) (TypeDescriptor, error) {
	d, ok := t[deviceType]
	if !ok {
		return TypeDescriptor{}, NewError(ErrLookup, "lookup device type", deviceType, nil)
	}
	return d, nil
}

// Types returns the known type names, sorted.
func (t DescriptorTable) Types() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every route of every descriptor.
func (t DescriptorTable) Validate() error {
	for _, typ := range t.Types() {
		d := t[typ]
		if err := d.Status.validate(); err != nil {
			return fmt.Errorf("device type %s: status: %w", typ, err)
		}
		for _, name := range d.CommandNames() {
			if name == StatusQuery {
				return fmt.Errorf("device type %s: command name %q is reserved", typ, name)
			}
			if err := d.Commands[name].validate(); err != nil {
				return fmt.Errorf("device type %s: command %s: %w", typ, name, err)
			}
		}
	}
	return nil
}

// DefaultDescriptorTable returns the built-in table for the stock firmware
// images.
func DefaultDescriptorTable() DescriptorTable {
	return DescriptorTable{
		"esp8266_led_on_board": {
			Status: Route{Route: "/api/led", Method: http.MethodGet, Field: "led_on"},
			Commands: map[string]Route{
				"toggle": {Route: "/api/led/toggle", Method: http.MethodGet, Field: "led_on"},
			},
			Images: map[string]string{
				"led": "/static/images/esp8266_led_on_board.png",
			},
		},
		"relay": {
			Status: Route{Route: "/api/relay", Method: http.MethodGet, Field: "relay_on"},
			Commands: map[string]Route{
				"toggle": {Route: "/api/relay/toggle", Method: http.MethodGet, Field: "relay_on"},
			},
			Images: map[string]string{
				"relay":  "/static/images/relay.png",
				"socket": "/static/images/socket.png",
			},
		},
		"servo": {
			Status: Route{Route: "/api/servo", Method: http.MethodGet, Field: "servo_status"},
			Commands: map[string]Route{
				"toggle": {Route: "/api/servo/on", Method: http.MethodGet, Field: "servo_status"},
			},
			Images: map[string]string{
				"servo":  "/static/images/esp8266_led_on_board.png",
				"kettle": "/static/images/kettle.png",
			},
		},
	}
}
