package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Category groups evidence
type Category string

const (
	CategoryCapability Category = "capability"
	CategoryNetwork    Category = "network"
)

// Evidence is one observed fact about the host
type Evidence struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Property   string         `json:"property"`
	Value      any            `json:"value"`
	Confidence float64        `json:"confidence"` // 0.0-1.0
	Method     string         `json:"method"`     // e.g. "read /proc/net/arp"
	Timestamp  time.Time      `json:"timestamp"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// NewEvidence creates evidence with a generated ID
func NewEvidence(cat Category, prop string, value any, conf float64, method string) Evidence {
	e := Evidence{
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Method:     method,
		Timestamp:  time.Now(),
	}
	data := fmt.Sprintf("%s:%s:%v:%d", e.Category, e.Property, e.Value, e.Timestamp.UnixNano())
	hash := sha256.Sum256([]byte(data))
	e.ID = hex.EncodeToString(hash[:8])
	return e
}

// WithRaw attaches raw data and returns the evidence for chaining
func (e Evidence) WithRaw(raw map[string]any) Evidence {
	e.Raw = raw
	return e
}

// EvidenceSet aggregates evidence. It is not safe for concurrent use.
type EvidenceSet struct {
	items []Evidence
}

// NewEvidenceSet creates an empty set
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{}
}

// Add appends one piece of evidence
func (es *EvidenceSet) Add(e Evidence) {
	es.items = append(es.items, e)
}

// AddAll appends several pieces of evidence
func (es *EvidenceSet) AddAll(items []Evidence) {
	es.items = append(es.items, items...)
}

// All returns every piece of evidence in insertion order
func (es *EvidenceSet) All() []Evidence {
	return es.items
}

// ByProperty returns the evidence for one property
func (es *EvidenceSet) ByProperty(cat Category, prop string) []Evidence {
	var out []Evidence
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			out = append(out, e)
		}
	}
	return out
}

// BestValue returns the value with the highest confidence for a property
func (es *EvidenceSet) BestValue(cat Category, prop string) (any, float64, bool) {
	var (
		best  any
		conf  float64
		found bool
	)
	for _, e := range es.ByProperty(cat, prop) {
		if !found || e.Confidence > conf {
			best, conf, found = e.Value, e.Confidence, true
		}
	}
	return best, conf, found
}

// Bool reports the best boolean value of a property, false when unknown
func (es *EvidenceSet) Bool(cat Category, prop string) bool {
	v, _, ok := es.BestValue(cat, prop)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
