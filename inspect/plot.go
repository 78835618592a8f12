package inspect

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotParams saves a bar chart of parameter counts per group to path. The
// image format follows the file extension.
func PlotParams(groups []GroupInfo, title, path string) error {
	if len(groups) == 0 {
		return fmt.Errorf("inspect: nothing to plot")
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.Y.Label.Text = "parameters"

	values := make(plotter.Values, len(groups))
	names := make([]string, len(groups))
	for i, g := range groups {
		values[i] = float64(g.Params)
		names[i] = g.Name
	}

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(groups)) * vg.Points(24)
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}
	return p.Save(width, 4*vg.Inch, path)
}
