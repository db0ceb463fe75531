package config

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/you/turnbell/internal/turns"
)

// PolicySource tells where the active reminder policy came from.
type PolicySource string

const (
	PolicyFromFile     PolicySource = "file"
	PolicyFromDefaults PolicySource = "defaults"
)

// DefaultPolicy is used when the policy file cannot be read or decoded.
func DefaultPolicy() turns.Policy {
	return turns.Policy{
		Blackout:       turns.Blackout{Enabled: true, StartHour: 0, EndHour: 7, GMTOffset: -5},
		ThresholdHours: turns.DefaultThresholdHours,
	}
}

// Pointer fields distinguish a missing key from a zero value.
type policyFile struct {
	Blackout *struct {
		Enabled   *bool `yaml:"enabled"`
		StartHour *int  `yaml:"startHour"`
		EndHour   *int  `yaml:"endHour"`
		GMTOffset *int  `yaml:"gmtOffset"`
	} `yaml:"blackout"`
	ReminderThresholdHours *float64 `yaml:"reminderThresholdHours"`
}

// LoadPolicy reads a JSON or YAML policy file. A file that is missing or
// does not decode yields DefaultPolicy. Keys absent from a decoded file
// fall back individually, and a missing blackout.enabled means disabled.
// Out-of-range values are an error.
func LoadPolicy(path string) (turns.Policy, PolicySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("config: could not load policy file, using defaults", "path", path, "err", err)
		return DefaultPolicy(), PolicyFromDefaults, nil
	}
	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Warn("config: could not parse policy file, using defaults", "path", path, "err", err)
		return DefaultPolicy(), PolicyFromDefaults, nil
	}

	p := turns.Policy{
		Blackout:       turns.Blackout{Enabled: false, StartHour: 0, EndHour: 7, GMTOffset: -5},
		ThresholdHours: turns.DefaultThresholdHours,
	}
	if b := raw.Blackout; b != nil {
		if b.Enabled != nil {
			p.Blackout.Enabled = *b.Enabled
		}
		if b.StartHour != nil {
			p.Blackout.StartHour = *b.StartHour
		}
		if b.EndHour != nil {
			p.Blackout.EndHour = *b.EndHour
		}
		if b.GMTOffset != nil {
			p.Blackout.GMTOffset = *b.GMTOffset
		}
	}
	if raw.ReminderThresholdHours != nil {
		p.ThresholdHours = *raw.ReminderThresholdHours
	}
	if err := validatePolicy(p); err != nil {
		return turns.Policy{}, "", errors.Wrapf(err, "config: policy file %s", path)
	}
	return p, PolicyFromFile, nil
}

func validatePolicy(p turns.Policy) error {
	if p.Blackout.StartHour < 0 || p.Blackout.StartHour > 23 {
		return errors.Errorf("blackout.startHour %d out of range 0-23", p.Blackout.StartHour)
	}
	if p.Blackout.EndHour < 0 || p.Blackout.EndHour > 23 {
		return errors.Errorf("blackout.endHour %d out of range 0-23", p.Blackout.EndHour)
	}
	if p.Blackout.GMTOffset < -12 || p.Blackout.GMTOffset > 14 {
		return errors.Errorf("blackout.gmtOffset %d out of range -12..14", p.Blackout.GMTOffset)
	}
	if p.ThresholdHours <= 0 {
		return errors.Errorf("reminderThresholdHours must be positive, got %v", p.ThresholdHours)
	}
	return nil
}
