package store

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/dipolar/measure"
	"github.com/fumin/dipolar/mps"
)

const (
	observablesDir = "observables"
	summaryFile    = "observables.txt"
)

// LogPaths returns the observable logs under dir, keyed by observable.
func LogPaths(dir string) map[string]string {
	paths := map[string]string{
		"EE":      filepath.Join(dir, observablesDir, "EE.txt"),
		"Nu":      filepath.Join(dir, observablesDir, "Nus.txt"),
		"Nd":      filepath.Join(dir, observablesDir, "Nds.txt"),
		"summary": filepath.Join(dir, summaryFile),
	}
	for _, ch := range measure.Channels {
		paths[ch] = filepath.Join(dir, observablesDir, "corr_dipole_"+ch+".txt")
	}
	return paths
}

// Save appends the observables of a run to the logs under dir, then writes its state database.
// An interrupted Save leaves complete log lines and no state database.
func Save(ctx context.Context, dir string, psi *mps.MPS, res measure.Result, run Run) error {
	if err := AppendLogs(dir, res, run); err != nil {
		return errors.Wrap(err, "")
	}
	if err := SaveState(ctx, StatePath(dir, run.Params), psi, run); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// AppendLogs appends one line per observable, each line starting with t, tp and U.
// The summary line holds t, tp, U, the energy and the largest entropy.
func AppendLogs(dir string, res measure.Result, run Run) error {
	if err := os.MkdirAll(filepath.Join(dir, observablesDir), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	p := run.Params
	prefix := []float64{p.T, p.TP, p.U}
	paths := LogPaths(dir)
	type logRow struct {
		path   string
		values []float64
	}
	rows := []logRow{
		{path: paths["EE"], values: res.Entropy},
		{path: paths["Nu"], values: res.Density["Nu"]},
		{path: paths["Nd"], values: res.Density["Nd"]},
	}
	for _, ch := range measure.Channels {
		rows = append(rows, logRow{path: paths[ch], values: res.Correlations[ch]})
	}
	for _, r := range rows {
		if err := AppendLine(r.path, append(prefix[:3:3], r.values...)); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := AppendLine(paths["summary"], append(prefix[:3:3], run.Energy, res.MaxEntropy())); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// AppendLine appends the space separated values and a newline to path, and syncs the file.
func AppendLine(path string, values []float64) error {
	fields := make([]string, 0, len(values))
	for _, v := range values {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := f.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

// ReadLog returns the rows of a log.
// A last line without a newline is the remains of an interrupted write and is skipped.
func ReadLog(path string) ([][]float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	complete := string(b)
	if i := strings.LastIndexByte(complete, '\n'); i >= 0 {
		complete = complete[:i+1]
	} else {
		complete = ""
	}

	rows := make([][]float64, 0)
	scanner := bufio.NewScanner(strings.NewReader(complete))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		fields := strings.Fields(scanner.Text())
		row := make([]float64, 0, len(fields))
		for _, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", path, n)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return rows, nil
}
