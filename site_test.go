package dipolar

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/fumin/dipolar/mat"
)

func TestNewSite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		opt     SiteOptions
		err     error
		charges []Charge
	}{
		{
			opt:     NewSiteOptions(),
			charges: []Charge{{0, 0, 0}, {1, 1, 0}, {1, -1, 0}, {2, 0, 0}},
		},
		{
			opt:     NewSiteOptions().Conserve(),
			charges: []Charge{{}, {}, {}, {}},
		},
		{
			opt:     NewSiteOptions().Conserve(ChargeN, ChargeSz, ChargeD).Position(3),
			charges: []Charge{{0, 0, 0}, {1, 1, 3}, {1, -1, 3}, {2, 0, 6}},
		},
		{
			opt:     NewSiteOptions().Conserve(ChargeN, ChargeD).Position(2),
			charges: []Charge{{0, 0, 0}, {1, 0, 2}, {1, 0, 2}, {2, 0, 4}},
		},
		{opt: NewSiteOptions().Conserve("Q"), err: ErrConfiguration},
		{opt: NewSiteOptions().Conserve(ChargeSz, ChargeD).Position(1), err: ErrConfiguration},
		{opt: NewSiteOptions().Conserve(ChargeN, ChargeD), err: ErrConfiguration},
		{opt: NewSiteOptions().Position(-1), err: ErrConfiguration},
		{opt: NewSiteOptions().Products(Prod("Cu", "Foo")), err: ErrLookup},
		{opt: NewSiteOptions().Products(Op("Cu")), err: ErrLookup},
		{opt: NewSiteOptions().Products(Prod("Cu", "Cu")), err: ErrLookup},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.opt), func(t *testing.T) {
			t.Parallel()
			s, err := NewSite(test.opt)
			if test.err != nil {
				if !errors.Is(err, test.err) {
					t.Fatalf("%+v, expected %v", err, test.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if diff := cmp.Diff(test.charges, s.Charges()); diff != "" {
				t.Fatalf("%s", diff)
			}
		})
	}
}

func TestSiteOperators(t *testing.T) {
	t.Parallel()
	s, err := NewSite(NewSiteOptions().Conserve(ChargeN, ChargeSz, ChargeD).Position(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	op := func(k OpKey) *mat.COO {
		m, err := s.Op(k)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return m
	}

	// Operators of different flavors anticommute on the same site.
	for _, pair := range [][2]OpKey{{opCu, opCd}, {opCdu, opCdd}, {opCu, opCdd}, {opCdu, opCd}} {
		ab := mat.Mul(op(pair[0]), op(pair[1]))
		ab.Add(1, mat.Mul(op(pair[1]), op(pair[0])))
		if ab.NumNonZero() != 0 {
			t.Fatalf("%v %v do not anticommute %s", pair[0], pair[1], ab)
		}
	}
	// {c, c†} = 1 for each flavor.
	for _, pair := range [][2]OpKey{{opCu, opCdu}, {opCd, opCdd}} {
		ab := mat.Mul(op(pair[0]), op(pair[1]))
		ab.Add(1, mat.Mul(op(pair[1]), op(pair[0])))
		if !ab.Equal(mat.COOIdentity(4)) {
			t.Fatalf("%v %v %s", pair[0], pair[1], ab)
		}
	}
	if nn := mat.Mul(op(opNu), op(opNd)); !nn.Equal(op(opNuNd)) {
		t.Fatalf("%s, expected %s", nn, op(opNuNd))
	}
	if cc := mat.Mul(op(opCu), op(opCd)); !cc.Equal(op(opCuCd)) {
		t.Fatalf("%s, expected %s", cc, op(opCuCd))
	}

	tests := []struct {
		k      OpKey
		odd    bool
		charge Charge
	}{
		{k: opCu, odd: true, charge: Charge{-1, -1, -2}},
		{k: opCdd, odd: true, charge: Charge{1, -1, 2}},
		{k: opCuCd, odd: false, charge: Charge{-2, 0, -4}},
		{k: opCduCdd, odd: false, charge: Charge{2, 0, 4}},
		{k: Op("Sp"), odd: false, charge: Charge{0, 2, 0}},
		{k: opNtot, odd: false, charge: Charge{}},
	}
	for _, test := range tests {
		odd, err := s.Odd(test.k)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		q, err := s.OpCharge(test.k)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if odd != test.odd || q != test.charge {
			t.Fatalf("%v: %v %v, expected %v %v", test.k, odd, q, test.odd, test.charge)
		}
	}

	if _, err := s.Op(Prod("Cu", "Cu")); !errors.Is(err, ErrLookup) {
		t.Fatalf("%+v", err)
	}
	// Deriving an existing product again leaves the table unchanged.
	before := op(opCdCu).Clone()
	if err := s.derive(opCdCu); err != nil {
		t.Fatalf("%+v", err)
	}
	if !op(opCdCu).Equal(before) {
		t.Fatalf("%s, expected %s", op(opCdCu), before)
	}
}

func TestParseOpKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s   string
		k   OpKey
		err error
	}{
		{s: "Cu", k: opCu},
		{s: "Cdd Cdu", k: opCddCdu},
		{s: "", err: ErrLookup},
		{s: "Cu Cd Cu", err: ErrLookup},
	}
	for _, test := range tests {
		k, err := ParseOpKey(test.s)
		if !errors.Is(err, test.err) {
			t.Fatalf("%q: %+v", test.s, err)
		}
		if k != test.k {
			t.Fatalf("%q: %v, expected %v", test.s, k, test.k)
		}
		if test.err == nil && k.String() != test.s {
			t.Fatalf("%q %q", k.String(), test.s)
		}
	}
}
