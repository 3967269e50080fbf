// Package report は学習結果の可視化を提供します。
package report

import (
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// Supported output formats, chosen by file extension.
var formats = map[string]bool{".png": true, ".svg": true}

// ScreePlot builds a plot of explained_variance_ratio per component with the
// cumulative ratio drawn as a line on top.
func ScreePlot(state *model.TrainedState, title string) (*plot.Plot, error) {
	if state == nil || len(state.ExplainedVarianceRatio) == 0 {
		return nil, errors.NewValidationError("trained_state", "no explained_variance_ratio to plot", nil)
	}
	ratio := state.ExplainedVarianceRatio

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Component"
	p.Y.Label.Text = "Explained variance ratio"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(plotter.Values(ratio), vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "creating bar chart")
	}
	bars.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	pts := make(plotter.XYs, len(ratio))
	var cum float64
	for i, r := range ratio {
		cum += r
		pts[i] = plotter.XY{X: float64(i), Y: cum}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, errors.Wrap(err, "creating cumulative line")
	}
	line.Color = color.RGBA{R: 220, G: 80, B: 60, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("ratio", bars)
	p.Legend.Add("cumulative", line)
	p.Legend.Top = true

	names := make([]string, len(ratio))
	for i := range names {
		names[i] = "PC" + strconv.Itoa(i+1)
	}
	p.NominalX(names...)
	if cum > 1 {
		p.Y.Max = cum
	} else {
		p.Y.Max = 1
	}
	return p, nil
}

// SaveScreePlot writes the scree plot of state to path. The format follows
// the extension, which must be .png or .svg.
func SaveScreePlot(state *model.TrainedState, title, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !formats[ext] {
		return errors.NewValidationError("path", "extension must be .png or .svg", path)
	}
	p, err := ScreePlot(state, title)
	if err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving scree plot to %s", path)
	}
	return nil
}
