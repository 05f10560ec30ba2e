package bootstrap

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Options selects what Run probes
type Options struct {
	ARPTable   string
	ARPCommand string
	// NmapBinary is probed only when CheckNmap is set
	NmapBinary string
	CheckNmap  bool
}

// Interface is a broadcast-capable IPv4 interface
type Interface struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Subnet string `json:"subnet"`
	MAC    string `json:"mac"`
}

// Capabilities is what discovery can rely on in this environment
type Capabilities struct {
	ICMP          bool        `json:"icmp"`
	ICMPMode      string      `json:"icmp_mode,omitempty"`
	NeighborTable bool        `json:"neighbor_table"`
	Nmap          bool        `json:"nmap"`
	NmapVersion   string      `json:"nmap_version,omitempty"`
	Interfaces    []Interface `json:"interfaces"`
}

// Result contains all bootstrap findings
type Result struct {
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration"`
	Evidence     *EvidenceSet  `json:"-"`
	Capabilities Capabilities  `json:"capabilities"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Run probes the host once at startup
func Run(ctx context.Context, opts Options, logger zerolog.Logger) *Result {
	start := time.Now()

	evidence := NewEvidenceSet()
	evidence.AddAll(ProbeICMP())
	evidence.AddAll(ProbeNeighborTable(opts.ARPTable, opts.ARPCommand))
	if opts.CheckNmap {
		evidence.AddAll(ProbeNmap(ctx, opts.NmapBinary))
	}
	evidence.AddAll(DetectInterfaces())

	caps, warnings := Synthesize(evidence, opts)
	result := &Result{
		Timestamp:    time.Now(),
		Duration:     time.Since(start),
		Evidence:     evidence,
		Capabilities: caps,
		Warnings:     warnings,
	}

	logger.Info().
		Bool("icmp", caps.ICMP).
		Bool("neighbor_table", caps.NeighborTable).
		Bool("nmap", caps.Nmap).
		Int("interfaces", len(caps.Interfaces)).
		Dur("duration", result.Duration).
		Msg("Bootstrap complete")
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	return result
}

// Synthesize turns evidence into capabilities plus operator warnings
func Synthesize(es *EvidenceSet, opts Options) (Capabilities, []string) {
	caps := Capabilities{
		ICMP:          es.Bool(CategoryCapability, PropICMP),
		NeighborTable: es.Bool(CategoryCapability, PropNeighborTable),
		Nmap:          es.Bool(CategoryCapability, PropNmap),
	}

	if caps.ICMP {
		caps.ICMPMode = rawString(es, PropICMP, "mode")
	}
	if caps.Nmap {
		caps.NmapVersion = rawString(es, PropNmap, "version")
	}

	for _, e := range es.ByProperty(CategoryNetwork, PropInterface) {
		name, _ := e.Value.(string)
		caps.Interfaces = append(caps.Interfaces, Interface{
			Name:   name,
			IP:     stringOf(e.Raw["ip"]),
			Subnet: stringOf(e.Raw["subnet"]),
			MAC:    stringOf(e.Raw["mac"]),
		})
	}

	var warnings []string
	if !caps.ICMP {
		warnings = append(warnings, "ICMP sockets unavailable; ping will not be used to populate the neighbor table")
	}
	if !caps.NeighborTable {
		warnings = append(warnings, "Neighbor table unreadable and arp command missing; MAC resolution will mostly fail")
	}
	if opts.CheckNmap && !caps.Nmap {
		warnings = append(warnings, "nmap fallback requested but nmap is not usable")
	}
	if len(caps.Interfaces) == 0 {
		warnings = append(warnings, "No broadcast-capable interface found; probing the limited broadcast address only")
	}

	return caps, warnings
}

func rawString(es *EvidenceSet, prop, key string) string {
	var (
		best string
		conf float64
	)
	for _, e := range es.ByProperty(CategoryCapability, prop) {
		if v, ok := e.Value.(bool); ok && v && e.Confidence >= conf {
			best, conf = stringOf(e.Raw[key]), e.Confidence
		}
	}
	return best
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
