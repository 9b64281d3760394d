// Package settings holds the range timing settings the operator can edit,
// persisted as a JSON object between runs.
package settings

import (
	"errors"
	"fmt"
)

// Default values follow World Archery regulations.
const (
	DefaultTargetMaxTime     = 240
	DefaultMatchplayMaxTime  = 20
	DefaultTargetWarnTime    = 30
	DefaultMatchplayWarnTime = 30
	DefaultAutoToggleDetail  = true
	DefaultMatchplayNumEnds  = 3
	DefaultEquipFailTime     = 40
)

// MaxSeconds is the largest duration the indicator's three-digit display shows.
const MaxSeconds = 999

// ErrInvalidSettings is returned by Validate and Service.Update.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the persisted configuration. Durations are in seconds.
type Settings struct {
	TargetMaxTime     int  `json:"targetMaxTime"`
	MatchplayMaxTime  int  `json:"matchplayMaxTime"`
	TargetWarnTime    int  `json:"targetWarnTime"`
	MatchplayWarnTime int  `json:"matchplayWarnTime"`
	AutoToggleDetail  bool `json:"autoToggleDetail"`
	MatchplayNumEnds  int  `json:"matchplayNumEnds"`
	EquipFailTime     int  `json:"equipFailTime"`
}

// Defaults returns the settings used when nothing has been saved.
func Defaults() Settings {
	return Settings{
		TargetMaxTime:     DefaultTargetMaxTime,
		MatchplayMaxTime:  DefaultMatchplayMaxTime,
		TargetWarnTime:    DefaultTargetWarnTime,
		MatchplayWarnTime: DefaultMatchplayWarnTime,
		AutoToggleDetail:  DefaultAutoToggleDetail,
		MatchplayNumEnds:  DefaultMatchplayNumEnds,
		EquipFailTime:     DefaultEquipFailTime,
	}
}

// Validate checks every duration is in 1..MaxSeconds, warn times are below
// their end time and at least one match-play end is configured.
func (s Settings) Validate() error {
	durations := []struct {
		name string
		v    int
	}{
		{"targetMaxTime", s.TargetMaxTime},
		{"matchplayMaxTime", s.MatchplayMaxTime},
		{"targetWarnTime", s.TargetWarnTime},
		{"matchplayWarnTime", s.MatchplayWarnTime},
		{"equipFailTime", s.EquipFailTime},
	}
	for _, d := range durations {
		if d.v < 1 || d.v > MaxSeconds {
			return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrInvalidSettings, d.name, MaxSeconds, d.v)
		}
	}
	if s.TargetWarnTime > s.TargetMaxTime {
		return fmt.Errorf("%w: targetWarnTime exceeds targetMaxTime", ErrInvalidSettings)
	}
	if s.MatchplayNumEnds < 1 {
		return fmt.Errorf("%w: matchplayNumEnds must be at least 1", ErrInvalidSettings)
	}
	return nil
}
