package turns

import "time"

// Blackout is a daily window, in local hours, during which reminders are
// suppressed. GMTOffset is a whole-hour shift from UTC.
type Blackout struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	StartHour int  `yaml:"startHour" json:"startHour"`
	EndHour   int  `yaml:"endHour" json:"endHour"`
	GMTOffset int  `yaml:"gmtOffset" json:"gmtOffset"`
}

// LocalHour is the hour of day at now shifted by the configured offset.
func (b Blackout) LocalHour(now time.Time) int {
	return now.UTC().Add(time.Duration(b.GMTOffset) * time.Hour).Hour()
}

// Active reports whether now falls in [StartHour, EndHour). A start after
// the end wraps past midnight.
func (b Blackout) Active(now time.Time) bool {
	if !b.Enabled {
		return false
	}
	hour := b.LocalHour(now)
	if b.StartHour <= b.EndHour {
		return hour >= b.StartHour && hour < b.EndHour
	}
	return hour >= b.StartHour || hour < b.EndHour
}
