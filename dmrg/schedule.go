// Package dmrg drives ground state searches: the bond dimension ramp, the decaying mixer and convergence monitoring.
package dmrg

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
)

// Schedule maps sweep indices to bond dimension ceilings.
// Sweeps without an entry inherit the ceiling of the nearest preceding entry.
type Schedule struct {
	sweeps   []int
	ceilings []int
}

// NewSchedule returns the schedule with the given entries, keyed by sweep index.
// Ceilings must be positive and non-decreasing in the sweep index.
func NewSchedule(entries map[int]int) (Schedule, error) {
	if len(entries) == 0 {
		return Schedule{}, errors.Wrapf(dipolar.ErrConfiguration, "empty schedule")
	}
	s := Schedule{sweeps: slices.Sorted(maps.Keys(entries))}
	for i, sweep := range s.sweeps {
		c := entries[sweep]
		switch {
		case sweep < 0:
			return Schedule{}, errors.Wrapf(dipolar.ErrConfiguration, "negative sweep %d", sweep)
		case c < 1:
			return Schedule{}, errors.Wrapf(dipolar.ErrConfiguration, "ceiling %d at sweep %d", c, sweep)
		case i > 0 && c < s.ceilings[i-1]:
			return Schedule{}, errors.Wrapf(dipolar.ErrConfiguration, "ceiling %d at sweep %d below %d at sweep %d", c, sweep, s.ceilings[i-1], s.sweeps[i-1])
		}
		s.ceilings = append(s.ceilings, c)
	}
	return s, nil
}

// RampSchedule interpolates linearly from floor to chiMax over steps checkpoints spaced spacing sweeps apart.
// The ceiling is chiMax from sweep steps*spacing onwards.
// A floor above chiMax is lowered to chiMax.
func RampSchedule(chiMax, floor, steps, spacing int) (Schedule, error) {
	if chiMax < 1 || floor < 1 || steps < 0 || spacing < 1 {
		return Schedule{}, errors.Wrapf(dipolar.ErrConfiguration, "chi %d floor %d steps %d spacing %d", chiMax, floor, steps, spacing)
	}
	floor = min(floor, chiMax)
	entries := map[int]int{0: floor}
	for i := 1; i <= steps; i++ {
		entries[i*spacing] = floor + (chiMax-floor)*i/steps
	}
	if steps == 0 {
		entries[0] = chiMax
	}
	s, err := NewSchedule(entries)
	if err != nil {
		return Schedule{}, errors.Wrap(err, "")
	}
	return s, nil
}

// CeilingFor returns the ceiling in force at a sweep.
// Before the first entry the first ceiling applies.
func (s Schedule) CeilingFor(sweep int) int {
	i := sort.SearchInts(s.sweeps, sweep+1) - 1
	return s.ceilings[max(i, 0)]
}

// Final returns the ceiling of the last entry.
func (s Schedule) Final() int { return s.ceilings[len(s.ceilings)-1] }

func (s Schedule) String() string {
	parts := make([]string, 0, len(s.sweeps))
	for i, sweep := range s.sweeps {
		parts = append(parts, fmt.Sprintf("%d:%d", sweep, s.ceilings[i]))
	}
	return fmt.Sprintf("%v", parts)
}

// Mixer is a geometrically decaying density matrix perturbation.
type Mixer struct {
	Amplitude float64 `yaml:"amplitude"`
	// Decay multiplies the amplitude after every sweep.
	Decay float64 `yaml:"decay"`
	// DisableAfter is the first sweep without the mixer.
	DisableAfter int `yaml:"disable_after"`
}

// Validate checks that the mixer decays.
func (m Mixer) Validate() error {
	if m.Amplitude < 0 || math.IsNaN(m.Amplitude) {
		return errors.Wrapf(dipolar.ErrConfiguration, "mixer amplitude %f", m.Amplitude)
	}
	if !(m.Decay > 0 && m.Decay <= 1) {
		return errors.Wrapf(dipolar.ErrConfiguration, "mixer decay %f", m.Decay)
	}
	if m.DisableAfter < 0 {
		return errors.Wrapf(dipolar.ErrConfiguration, "mixer disable after %d", m.DisableAfter)
	}
	return nil
}

// AmplitudeFor returns Amplitude * Decay^sweep, or zero from sweep DisableAfter on.
func (m Mixer) AmplitudeFor(sweep int) float64 {
	if sweep < 0 || sweep >= m.DisableAfter {
		return 0
	}
	return m.Amplitude * math.Pow(m.Decay, float64(sweep))
}
