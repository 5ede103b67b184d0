// Package store persists ground states in sqlite databases and observables in append only text logs.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/dipolar"
	"github.com/fumin/dipolar/mps"
)

const (
	tableRun   = "run"
	tableSite  = "site"
	tableBond  = "bond"
	dbTimeout  = time.Minute
	stateDir   = "mps"
	chargeSize = 3 * 8
)

// Run identifies a run and summarizes its outcome.
type Run struct {
	ID        uuid.UUID
	Params    dipolar.Params
	Energy    float64
	Converged bool
	Sweeps    int
}

// StatePath returns the path of the state database of a parameter set under dir.
func StatePath(dir string, p dipolar.Params) string {
	return filepath.Join(dir, stateDir, fmt.Sprintf("psi_L_%d_t_%.2f_tp_%.2f_U_%.2f.db", p.L, p.T, p.TP, p.U))
}

// SaveState writes psi and run to a sqlite database at path, replacing any previous database.
// The database is written next to path and renamed into place, so path never holds a partial state.
func SaveState(ctx context.Context, path string, psi *mps.MPS, run Run) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "")
	}
	if err := writeState(ctx, tmp, psi, run); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func writeState(ctx context.Context, path string, psi *mps.MPS, run Run) error {
	db, err := newDB(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer tx.Rollback()

	p := run.Params
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, l, t, tp, h, u, mu, energy, converged, sweeps, center) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableRun)
	args := []any{run.ID.String(), p.L, p.T, p.TP, p.H, p.U, p.Mu, run.Energy, run.Converged, run.Sweeps, psi.Center()}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	for i := range psi.L() {
		a := psi.Tensor(i)
		sqlStr := fmt.Sprintf(`INSERT INTO %s (i, dl, d, dr, data, phys) VALUES (?, ?, ?, ?, ?, ?)`, tableSite)
		if _, err := tx.ExecContext(ctx, sqlStr, i, a.Shape[0], a.Shape[1], a.Shape[2], encodeFloats(a.Data), encodeCharges(psi.PhysicalCharges(i))); err != nil {
			return errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
	}
	for i := range psi.L() + 1 {
		sqlStr := fmt.Sprintf(`INSERT INTO %s (i, charges) VALUES (?, ?)`, tableBond)
		if _, err := tx.ExecContext(ctx, sqlStr, i, encodeCharges(psi.BondCharges(i))); err != nil {
			return errors.Wrap(err, fmt.Sprintf("bond %d", i))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// LoadState reads a database written by SaveState.
func LoadState(ctx context.Context, path string) (*mps.MPS, Run, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var run Run
	var id string
	var center int
	sqlStr := fmt.Sprintf(`SELECT id, l, t, tp, h, u, mu, energy, converged, sweeps, center FROM %s`, tableRun)
	p := &run.Params
	if err := db.QueryRowContext(ctx, sqlStr).Scan(&id, &p.L, &p.T, &p.TP, &p.H, &p.U, &p.Mu, &run.Energy, &run.Converged, &run.Sweeps, &center); err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}

	var tensors []mps.Tensor
	var phys [][]dipolar.Charge
	sqlStr = fmt.Sprintf(`SELECT i, dl, d, dr, data, phys FROM %s ORDER BY i`, tableSite)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var i int
		var a mps.Tensor
		var data, q []byte
		if err := rows.Scan(&i, &a.Shape[0], &a.Shape[1], &a.Shape[2], &data, &q); err != nil {
			return nil, Run{}, errors.Wrap(err, "")
		}
		if i != len(tensors) {
			return nil, Run{}, errors.Errorf("site %d after %d sites", i, len(tensors))
		}
		if a.Data, err = decodeFloats(data); err != nil {
			return nil, Run{}, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		pq, err := decodeCharges(q)
		if err != nil {
			return nil, Run{}, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		tensors = append(tensors, a)
		phys = append(phys, pq)
	}
	if err := rows.Err(); err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}

	var bonds [][]dipolar.Charge
	sqlStr = fmt.Sprintf(`SELECT charges FROM %s ORDER BY i`, tableBond)
	bondRows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	defer bondRows.Close()
	for bondRows.Next() {
		var q []byte
		if err := bondRows.Scan(&q); err != nil {
			return nil, Run{}, errors.Wrap(err, "")
		}
		bq, err := decodeCharges(q)
		if err != nil {
			return nil, Run{}, errors.Wrap(err, fmt.Sprintf("bond %d", len(bonds)))
		}
		bonds = append(bonds, bq)
	}
	if err := bondRows.Err(); err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}

	psi, err := mps.FromTensors(phys, bonds, tensors, center)
	if err != nil {
		return nil, Run{}, errors.Wrap(err, "")
	}
	return psi, run, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (id TEXT, l INTEGER, t REAL, tp REAL, h REAL, u REAL, mu REAL, energy REAL, converged INTEGER, sweeps INTEGER, center INTEGER) STRICT`, tableRun),
		fmt.Sprintf(`CREATE TABLE %s (i INTEGER PRIMARY KEY, dl INTEGER, d INTEGER, dr INTEGER, data BLOB, phys BLOB) STRICT`, tableSite),
		fmt.Sprintf(`CREATE TABLE %s (i INTEGER PRIMARY KEY, charges BLOB) STRICT`, tableBond),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func encodeFloats(xs []float64) []byte {
	b := make([]byte, 0, 8*len(xs))
	for _, x := range xs {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	}
	return b
}

func decodeFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, errors.Errorf("%d bytes", len(b))
	}
	xs := make([]float64, 0, len(b)/8)
	for i := 0; i < len(b); i += 8 {
		xs = append(xs, math.Float64frombits(binary.LittleEndian.Uint64(b[i:])))
	}
	return xs, nil
}

func encodeCharges(qs []dipolar.Charge) []byte {
	b := make([]byte, 0, chargeSize*len(qs))
	for _, q := range qs {
		for _, v := range q {
			b = binary.LittleEndian.AppendUint64(b, uint64(int64(v)))
		}
	}
	return b
}

func decodeCharges(b []byte) ([]dipolar.Charge, error) {
	if len(b)%chargeSize != 0 {
		return nil, errors.Errorf("%d bytes", len(b))
	}
	qs := make([]dipolar.Charge, 0, len(b)/chargeSize)
	for i := 0; i < len(b); i += chargeSize {
		var q dipolar.Charge
		for j := range q {
			q[j] = int(int64(binary.LittleEndian.Uint64(b[i+8*j:])))
		}
		qs = append(qs, q)
	}
	return qs, nil
}
