package mat

import (
	"fmt"
	"math"
	"os"
	"testing"
)

func TestAdd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a          *COO
		c          float64
		b          *COO
		z          *COO
		numNonZero int
	}{
		{
			a: M([][]float64{
				{1, 0},
				{0, 2},
			}),
			c: -2,
			b: M([][]float64{
				{3, 0},
				{2, 1},
			}),
			z: M([][]float64{
				{-5, 0},
				{-4, 0},
			}),
			numNonZero: 2,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Add(test.c, test.b)
			if !test.a.Equal(test.z) {
				t.Fatalf("%s, expected %s", test.a, test.z)
			}
			if test.a.NumNonZero() != test.numNonZero {
				t.Fatalf("%d, expected %d", test.a.NumNonZero(), test.numNonZero)
			}
		})
	}
}

func TestMul(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]float64{
				{0, 0},
				{-1, 2},
			}),
			b: M([][]float64{
				{0, 1},
				{0, 2},
			}),
			c: M([][]float64{
				{0, 0},
				{0, 3},
			}),
		},
		{
			a: M([][]float64{
				{1, 2, 3},
			}),
			b: M([][]float64{{3}, {-2}, {1}}),
			c: M([][]float64{{2}}),
		},
		// Products that cancel are not stored.
		{
			a: M([][]float64{
				{1, 1},
			}),
			b: M([][]float64{{1}, {-1}}),
			c: COOZeros(1, 1),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			c := Mul(test.a, test.b)
			if !c.Equal(test.c) {
				t.Fatalf("%s, expected %s", c, test.c)
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	t.Parallel()
	a := M([][]float64{
		{1, 0, 2},
		{0, 3, 0},
	})
	expected := M([][]float64{
		{1, 0},
		{0, 3},
		{2, 0},
	})
	if at := a.T(); !at.Equal(expected) {
		t.Fatalf("%s, expected %s", at, expected)
	}
	if a.IsSymmetric(0) {
		t.Fatalf("%s is not square", a)
	}
}

func TestKron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]float64{
				{1, -4, 7},
				{-2, 0, 3},
			}),
			b: M([][]float64{
				{8, -9, -6, 5},
				{1, -3, 0, 7},
				{2, 8, -8, -3},
				{1, 2, -5, -1},
			}),
			c: M([][]float64{
				{8, -9, -6, 5, -32, 36, 24, -20, 56, -63, -42, 35},
				{1, -3, 0, 7, -4, 12, 0, -28, 7, -21, 0, 49},
				{2, 8, -8, -3, -8, -32, 32, 12, 14, 56, -56, -21},
				{1, 2, -5, -1, -4, -8, 20, 4, 7, 14, -35, -7},
				{-16, 18, 12, -10, 0, 0, 0, 0, 24, -27, -18, 15},
				{-2, 6, 0, -14, 0, 0, 0, 0, 3, -9, 0, 21},
				{-4, -16, 16, 6, 0, 0, 0, 0, 6, 24, -24, -9},
				{-2, -4, 10, 2, 0, 0, 0, 0, 3, 6, -15, -3},
			}),
		},
		// Scalar kronecker.
		{
			a: M([][]float64{{1}}),
			b: M([][]float64{
				{1, 2},
				{3, 4},
			}),
			c: M([][]float64{
				{1, 2},
				{3, 4},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Kron(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestEigen(t *testing.T) {
	t.Parallel()
	m := M([][]float64{
		{2, -1, 0},
		{-1, 2, -1},
		{0, -1, 2},
	})
	vvs, err := m.Eigen()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vals := []float64{2 - math.Sqrt2, 2, 2 + math.Sqrt2}
	for i, vv := range vvs {
		if math.Abs(vv.Val-vals[i]) > 1e-12 {
			t.Fatalf("%d %f %f", i, vv.Val, vals[i])
		}
	}

	var norm float64
	for _, v := range vvs[0].Vec {
		norm += v * v
	}
	if math.Abs(norm-1) > 1e-12 {
		t.Fatalf("%f", norm)
	}

	if _, err := M([][]float64{{0, 1}, {0, 0}}).Eigen(); err == nil {
		t.Fatalf("expected error for non symmetric matrix")
	}
}

func TestCOOFile(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	m := M([][]float64{
		{0.5, 0, -3},
		{0, 0, 1e-9},
	})
	if err := m.WriteCOO(dir); err != nil {
		t.Fatalf("%+v", err)
	}
	read, err := ReadCOO(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !read.Equal(m) {
		t.Fatalf("%s, expected %s", read, m)
	}
}
