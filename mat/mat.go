// Package mat implements the sparse real matrices used for local operators and for exact diagonalization of small chains.
package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

type vRowCol struct {
	v   float64
	row int
	col int
}

// COO is a sparse matrix in coordinate format.
// Data is kept in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]float64
}

func M(dense [][]float64) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0), m: make(map[[2]int]float64)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]float64{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(rows int) *COO {
	m := COOZeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v float64) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// Clone returns a deep copy of m.
func (m *COO) Clone() *COO {
	c := &COO{rows: m.rows, cols: m.cols, Data: slices.Clone(m.Data), m: make(map[[2]int]float64)}
	return c
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// At returns the element at row i and column j.
func (m *COO) At(i, j int) float64 {
	k, ok := slices.BinarySearchFunc(m.Data, vRowCol{row: i, col: j}, rowMajor)
	if !ok {
		return 0
	}
	return m.Data[k].v
}

// Each calls fn for every non-zero element in row major order.
func (m *COO) Each(fn func(i, j int, v float64)) {
	for _, v := range m.Data {
		fn(v.row, v.col, v.v)
	}
}

func (m *COO) NumNonZero() int { return len(m.Data) }

// Add sets a = a + c*b.
func (a *COO) Add(c float64, b *COO) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	clear(b.m)
	for _, v := range b.Data {
		b.m[[2]int{v.row, v.col}] = v.v
	}

	for i, av := range a.Data {
		byx := [2]int{av.row, av.col}
		bv := b.m[byx]
		delete(b.m, byx)

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	for yx, bv := range b.m {
		if c*bv == 0 {
			continue
		}
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(b.m)
}

// Scale multiplies every element by c.
func (a *COO) Scale(c float64) {
	for i := range a.Data {
		a.Data[i].v *= c
	}
	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
}

// Mul returns the matrix product a @ b.
func Mul(a, b *COO) *COO {
	if a.cols != b.rows {
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	byRow := make(map[int][]vRowCol)
	for _, v := range b.Data {
		byRow[v.row] = append(byRow[v.row], v)
	}

	acc := make(map[[2]int]float64)
	for _, av := range a.Data {
		for _, bv := range byRow[av.col] {
			acc[[2]int{av.row, bv.col}] += av.v * bv.v
		}
	}

	c := COOZeros(a.rows, b.cols)
	for yx, v := range acc {
		if v == 0 {
			continue
		}
		c.Data = append(c.Data, vRowCol{v: v, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(c.Data, rowMajor)
	return c
}

// T returns the transpose of m.
func (m *COO) T() *COO {
	t := COOZeros(m.cols, m.rows)
	for _, v := range m.Data {
		t.Data = append(t.Data, vRowCol{v: v.v, row: v.col, col: v.row})
	}
	slices.SortFunc(t.Data, rowMajor)
	return t
}

func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	brows, bcols := b.rows, b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*brows + bv.row
			kx := av.col*bcols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// IsSymmetric reports whether m equals its transpose within tol.
func (m *COO) IsSymmetric(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	for _, v := range m.Data {
		if math.Abs(v.v-m.At(v.col, v.row)) > tol {
			return false
		}
	}
	return true
}

func (m *COO) Dense() [][]float64 {
	dense := make([][]float64, m.rows)
	for i := range dense {
		dense[i] = make([]float64, m.cols)
	}

	for _, v := range m.Data {
		dense[v.row][v.col] = v.v
	}

	return dense
}

func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	for _, v := range m.Data {
		if err1 := w.Write([]string{strconv.FormatFloat(v.v, 'g', -1, 64), strconv.Itoa(v.row), strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func ReadCOO(dir string) (*COO, error) {
	m := COOZeros(0, 0)
	var err error
	m.rows, m.cols, err = readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	f, err := os.Open(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer f.Close()
	r := csv.NewReader(f)
	for i := 0; ; i++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		if len(record) != 3 {
			return nil, errors.Errorf("%d %#v", i, record)
		}

		var vrc vRowCol
		vrc.v, err = strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		vrc.row, err = strconv.Atoi(record[1])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		vrc.col, err = strconv.Atoi(record[2])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		m.Data = append(m.Data, vrc)
	}

	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]

	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}

	return i, j, nil
}

func (m *COO) String() string {
	dense := m.Dense()
	lines := []string{}
	for _, row := range dense {
		cs := []string{}
		for _, v := range row {
			cs = append(cs, format(v))
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}
	return strings.Join(lines, "\n")
}

type ValVec struct {
	Val float64
	Vec []float64
}

// Eigen returns the eigen pairs of a symmetric matrix in ascending order of eigenvalues.
func (m *COO) Eigen() ([]ValVec, error) {
	if !m.IsSymmetric(1e-12) {
		return nil, errors.Errorf("not symmetric")
	}
	gnm := mat.NewSymDense(m.rows, nil)
	for _, v := range m.Data {
		gnm.SetSym(v.row, v.col, v.v)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(gnm, true); !ok {
		return nil, errors.Errorf("eig.Factorize failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]float64, 0, m.rows)
		for j := 0; j < m.rows; j++ {
			vec = append(vec, vecs.At(j, i))
		}
		vvs = append(vvs, ValVec{Val: v, Vec: vec})
	}
	slices.SortFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })

	return vvs, nil
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := fmt.Sprintf("%v", v)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}
