// Package figure renders measured profiles.
package figure

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/fumin/dipolar/measure"
)

// Profiles plots the entanglement entropy of each bond and the densities of each site to path.
// Bond i lies between sites i and i+1 and is drawn at i+0.5.
// The image format follows the extension of path.
func Profiles(path, title string, res measure.Result) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "site"
	p.Legend.Top = true

	ee := make(plotter.XYs, 0, len(res.Entropy))
	for i, s := range res.Entropy {
		ee = append(ee, plotter.XY{X: float64(i) + 0.5, Y: s})
	}
	args := []any{"EE", ee}
	for _, name := range []string{"Nu", "Nd"} {
		vs, ok := res.Density[name]
		if !ok {
			continue
		}
		xys := make(plotter.XYs, 0, len(vs))
		for i, v := range vs {
			xys = append(xys, plotter.XY{X: float64(i), Y: v})
		}
		args = append(args, name, xys)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

// Correlations plots the absolute dipole correlation of every channel against the separation.
func Correlations(path, title string, res measure.Result) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "separation"
	p.Y.Label.Text = "|C|"

	args := make([]any, 0, 2*len(measure.Channels))
	for _, ch := range measure.Channels {
		xys := make(plotter.XYs, 0, len(res.Correlations[ch]))
		for i, v := range res.Correlations[ch] {
			xys = append(xys, plotter.XY{X: float64(i), Y: v})
		}
		args = append(args, ch, xys)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}
