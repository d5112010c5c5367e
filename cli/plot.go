package cli

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/preintegration/preintegration"
)

// plotTrack saves a top down view of the window boundary positions.
func plotTrack(path string, track []*preintegration.State) error {
	if len(track) == 0 {
		return errors.New("no states to plot")
	}
	pts := make(plotter.XYs, 0, len(track))
	for _, s := range track {
		p := s.Position()
		pts = append(pts, plotter.XY{X: p.X, Y: p.Y})
	}

	p := plot.New()
	p.Title.Text = "preintegrated trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return errors.Wrap(err, "cannot build trajectory line")
	}
	line.Width = vg.Points(1)
	points.Radius = vg.Points(2)
	p.Add(line, points)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save plot to %s", path)
	}
	return nil
}
