package enums

import "fmt"

// IncidentSeverity grades security incident rows.
type IncidentSeverity string

const (
	IncidentSeverityInfo     IncidentSeverity = "info"
	IncidentSeverityWarning  IncidentSeverity = "warning"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

var validIncidentSeverities = []IncidentSeverity{
	IncidentSeverityInfo,
	IncidentSeverityWarning,
	IncidentSeverityCritical,
}

// IsValid reports whether the value is a known IncidentSeverity.
func (s IncidentSeverity) IsValid() bool {
	for _, candidate := range validIncidentSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseIncidentSeverity converts raw input into an IncidentSeverity.
func ParseIncidentSeverity(value string) (IncidentSeverity, error) {
	for _, candidate := range validIncidentSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid incident severity %q", value)
}
