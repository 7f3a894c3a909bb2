package cyclegan_go

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var lossColors = []color.RGBA{
	{R: 255, B: 128, A: 255},
	{G: 160, B: 255, A: 255},
	{R: 230, G: 150, A: 255},
	{G: 180, B: 60, A: 255},
}

// PlotLosses Plot chart of per-epoch losses of every network
func PlotLosses(history []Losses, fname string) error {
	if len(history) == 0 {
		return fmt.Errorf("Loss history is empty")
	}
	series := []struct {
		name  string
		value func(l Losses) float64
	}{
		{GeneratorGName, func(l Losses) float64 { return l.G }},
		{GeneratorFName, func(l Losses) float64 { return l.F }},
		{DiscriminatorXName, func(l Losses) float64 { return l.DX }},
		{DiscriminatorYName, func(l Losses) float64 { return l.DY }},
	}
	p := plot.New()
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	for i, s := range series {
		xys := make(plotter.XYs, len(history))
		for epoch, l := range history {
			xys[epoch].X = float64(epoch + 1)
			xys[epoch].Y = s.value(l)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init new line for '%s'", s.name))
		}
		line.Color = lossColors[i%len(lossColors)]
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	// Save the plot to a PNG file.
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
