package advertise

import (
	"time"
)

// AvailabilityStatus is an agent's advertised availability.
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityLimited     AvailabilityStatus = "limited"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
)

// Availability describes an agent's advertised capacity.
type Availability struct {
	// Status is the coarse availability bucket.
	Status AvailabilityStatus `json:"status"`

	// CurrentLoad is the agent's load in [0,1].
	CurrentLoad float64 `json:"current_load"`

	// NextAvailableSlot is when a busy agent expects to free up.
	NextAvailableSlot *time.Time `json:"next_available_slot,omitempty"`
}

// AdvertisedCapability is one capability entry within an advertisement.
type AdvertisedCapability struct {
	// Name is the capability name.
	Name string `json:"name"`

	// ConfidenceLevel is the coarse self-assessment (low/medium/high).
	ConfidenceLevel string `json:"confidence_level,omitempty"`

	// ConfidenceScore is the numeric self-assessment in [0,1].
	ConfidenceScore float64 `json:"confidence_score"`

	// Experience is free text about relevant experience.
	Experience string `json:"experience,omitempty"`

	// Specializations narrow the capability.
	Specializations []string `json:"specializations,omitempty"`

	// Limitations are known constraints.
	Limitations []string `json:"limitations,omitempty"`
}

// Advertisement is a time-boxed broadcast of an agent's capabilities.
type Advertisement struct {
	// ID is the advertisement identifier.
	ID string `json:"id"`

	// AgentID is the broadcasting agent.
	AgentID string `json:"agent_id"`

	// AgentName is the broadcasting agent's display name.
	AgentName string `json:"agent_name,omitempty"`

	// Capabilities are the advertised capability entries.
	Capabilities []AdvertisedCapability `json:"capabilities"`

	// Availability is the advertised capacity.
	Availability Availability `json:"availability"`

	// CreatedAt is when the advertisement was first broadcast.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is re-stamped on every update.
	UpdatedAt time.Time `json:"updated_at"`

	// ValidUntil is the advertisement's expiry.
	ValidUntil time.Time `json:"valid_until"`

	// Expired is set by the sweep once ValidUntil passes. The record stays
	// around as history.
	Expired bool `json:"expired"`
}

// ValidAt reports whether the advertisement is still valid at t.
func (a *Advertisement) ValidAt(t time.Time) bool {
	return t.Before(a.ValidUntil)
}

// capabilityNames lists the advertised capability names.
func (a *Advertisement) capabilityNames() []string {
	names := make([]string, 0, len(a.Capabilities))
	for _, c := range a.Capabilities {
		names = append(names, c.Name)
	}
	return names
}

// findCapability returns the entry for a capability name, if advertised.
func (a *Advertisement) findCapability(name string) (AdvertisedCapability, bool) {
	for _, c := range a.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return AdvertisedCapability{}, false
}

// clone returns a deep copy.
func (a *Advertisement) clone() *Advertisement {
	cp := *a
	cp.Capabilities = append([]AdvertisedCapability(nil), a.Capabilities...)
	return &cp
}
