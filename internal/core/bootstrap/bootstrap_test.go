package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewEvidence(t *testing.T) {
	e := NewEvidence(CategoryCapability, PropICMP, true, 0.95, "test method")

	if e.Category != CategoryCapability {
		t.Errorf("Category = %v, want %v", e.Category, CategoryCapability)
	}
	if e.Property != PropICMP {
		t.Errorf("Property = %v, want %v", e.Property, PropICMP)
	}
	if e.ID == "" {
		t.Error("ID should not be empty")
	}
}

func TestEvidenceSet_BestValue(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryCapability, PropNmap, false, 0.80, "m1"))
	es.Add(NewEvidence(CategoryCapability, PropNmap, true, 0.95, "m2"))
	es.Add(NewEvidence(CategoryCapability, PropNmap, false, 0.85, "m3"))

	val, conf, found := es.BestValue(CategoryCapability, PropNmap)
	if !found {
		t.Fatal("BestValue should find evidence")
	}
	if val != true {
		t.Errorf("Value = %v, want true", val)
	}
	if conf != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", conf)
	}

	if es.Bool(CategoryCapability, PropICMP) {
		t.Error("Bool on a missing property should be false")
	}
}

func TestSynthesize(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryCapability, PropICMP, true, 0.95, "probe").
		WithRaw(map[string]any{"mode": "unprivileged"}))
	es.Add(NewEvidence(CategoryCapability, PropNeighborTable, true, 0.95, "probe"))
	es.Add(NewEvidence(CategoryNetwork, PropInterface, "eth0", 0.95, "probe").
		WithRaw(map[string]any{"ip": "192.168.1.5", "subnet": "192.168.1.0/24", "mac": "aa:bb:cc:dd:ee:ff"}))

	caps, warnings := Synthesize(es, Options{})

	if !caps.ICMP || caps.ICMPMode != "unprivileged" {
		t.Errorf("ICMP = %v/%q, want true/unprivileged", caps.ICMP, caps.ICMPMode)
	}
	if !caps.NeighborTable {
		t.Error("NeighborTable should be true")
	}
	if len(caps.Interfaces) != 1 || caps.Interfaces[0].Subnet != "192.168.1.0/24" {
		t.Errorf("Interfaces = %+v", caps.Interfaces)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestSynthesizeWarnings(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryCapability, PropICMP, false, 0.90, "probe"))
	es.Add(NewEvidence(CategoryCapability, PropNmap, false, 0.95, "probe"))

	caps, warnings := Synthesize(es, Options{CheckNmap: true})
	if caps.ICMP || caps.Nmap || caps.NeighborTable {
		t.Errorf("expected no capabilities, got %+v", caps)
	}
	// icmp, neighbor table, nmap, interfaces
	if len(warnings) != 4 {
		t.Errorf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}

	_, warnings = Synthesize(es, Options{})
	if len(warnings) != 3 {
		t.Errorf("nmap warning without CheckNmap: %v", warnings)
	}
}

func TestProbeNeighborTable(t *testing.T) {
	table := filepath.Join(t.TempDir(), "arp")
	if err := os.WriteFile(table, []byte("IP address HW type\n"), 0644); err != nil {
		t.Fatal(err)
	}

	es := NewEvidenceSet()
	es.AddAll(ProbeNeighborTable(table, ""))
	if !es.Bool(CategoryCapability, PropNeighborTable) {
		t.Error("readable table should count as a neighbor source")
	}

	es = NewEvidenceSet()
	es.AddAll(ProbeNeighborTable(filepath.Join(t.TempDir(), "missing"), "definitely-not-a-command-xyz"))
	if es.Bool(CategoryCapability, PropNeighborTable) {
		t.Error("missing table and command should not count")
	}
}

func TestProbeNmapMissingBinary(t *testing.T) {
	es := NewEvidenceSet()
	es.AddAll(ProbeNmap(context.Background(), "definitely-not-nmap-xyz"))
	if es.Bool(CategoryCapability, PropNmap) {
		t.Error("missing binary should not be usable")
	}
}
