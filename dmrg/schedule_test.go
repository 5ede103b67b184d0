package dmrg

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
)

func TestNewSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		entries  map[int]int
		ceilings map[int]int
		err      error
	}{
		{
			entries:  map[int]int{0: 10, 5: 20, 10: 40},
			ceilings: map[int]int{0: 10, 4: 10, 5: 20, 9: 20, 10: 40, 1000: 40},
		},
		{
			entries:  map[int]int{3: 8, 6: 16},
			ceilings: map[int]int{0: 8, 2: 8, 3: 8, 6: 16, 7: 16},
		},
		{entries: map[int]int{}, err: dipolar.ErrConfiguration},
		{entries: map[int]int{0: 10, 5: 9}, err: dipolar.ErrConfiguration},
		{entries: map[int]int{-1: 10}, err: dipolar.ErrConfiguration},
		{entries: map[int]int{0: 0}, err: dipolar.ErrConfiguration},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.entries), func(t *testing.T) {
			t.Parallel()
			s, err := NewSchedule(test.entries)
			if test.err != nil {
				if !errors.Is(err, test.err) {
					t.Fatalf("%+v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for sweep, c := range test.ceilings {
				if got := s.CeilingFor(sweep); got != c {
					t.Fatalf("sweep %d ceiling %d, expected %d", sweep, got, c)
				}
			}
		})
	}
}

func TestRampSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		chiMax, floor, steps, spacing int
		first                         int
	}{
		{chiMax: 64, floor: 50, steps: 10, spacing: 5, first: 50},
		{chiMax: 1000, floor: 50, steps: 10, spacing: 5, first: 50},
		{chiMax: 20, floor: 50, steps: 10, spacing: 5, first: 20},
		{chiMax: 7, floor: 1, steps: 3, spacing: 1, first: 1},
		{chiMax: 33, floor: 2, steps: 0, spacing: 4, first: 33},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test), func(t *testing.T) {
			t.Parallel()
			s, err := RampSchedule(test.chiMax, test.floor, test.steps, test.spacing)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if c := s.CeilingFor(0); c != test.first {
				t.Fatalf("%d %d", c, test.first)
			}
			if s.Final() != test.chiMax {
				t.Fatalf("%d %d", s.Final(), test.chiMax)
			}
			last := test.steps * test.spacing
			prev := 0
			for sweep := range last + 3*test.spacing {
				c := s.CeilingFor(sweep)
				if c < prev {
					t.Fatalf("sweep %d ceiling %d below %d", sweep, c, prev)
				}
				if sweep >= last && c != test.chiMax {
					t.Fatalf("sweep %d ceiling %d, expected %d", sweep, c, test.chiMax)
				}
				prev = c
			}
		})
	}

	for _, args := range [][4]int{{0, 50, 10, 5}, {64, 0, 10, 5}, {64, 50, -1, 5}, {64, 50, 10, 0}} {
		if _, err := RampSchedule(args[0], args[1], args[2], args[3]); !errors.Is(err, dipolar.ErrConfiguration) {
			t.Fatalf("%v %+v", args, err)
		}
	}
}

func TestMixerAmplitude(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m Mixer
	}{
		{m: Mixer{Amplitude: 1e-2, Decay: 1 / 1.5, DisableAfter: 20}},
		{m: Mixer{Amplitude: 1, Decay: 0.5, DisableAfter: 3}},
		{m: Mixer{Amplitude: 1e-5, Decay: 0.9, DisableAfter: 0}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.m), func(t *testing.T) {
			t.Parallel()
			if err := test.m.Validate(); err != nil {
				t.Fatalf("%+v", err)
			}
			prev := test.m.Amplitude * 2
			for sweep := range test.m.DisableAfter + 10 {
				a := test.m.AmplitudeFor(sweep)
				if sweep >= test.m.DisableAfter {
					if a != 0 {
						t.Fatalf("sweep %d amplitude %g", sweep, a)
					}
					continue
				}
				if !(a > 0 && a < prev) {
					t.Fatalf("sweep %d amplitude %g previous %g", sweep, a, prev)
				}
				prev = a
			}
			if a := test.m.AmplitudeFor(0); test.m.DisableAfter > 0 && a != test.m.Amplitude {
				t.Fatalf("%g", a)
			}
		})
	}

	for _, m := range []Mixer{{Amplitude: -1, Decay: 0.5}, {Amplitude: 1, Decay: 0}, {Amplitude: 1, Decay: 1.5}, {Amplitude: 1, Decay: 0.5, DisableAfter: -1}} {
		if err := m.Validate(); !errors.Is(err, dipolar.ErrConfiguration) {
			t.Fatalf("%#v %+v", m, err)
		}
	}
}
