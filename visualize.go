package cyclegan_go

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	// FigureInputTitle Title of left column of comparison figure
	FigureInputTitle = "Input Image"
	// FigureTranslatedTitle Title of right column of comparison figure
	FigureTranslatedTitle = "Translated Image"
)

// ComparisonPair Denormalized input image and its translation
type ComparisonPair struct {
	Input      image.Image
	Translated image.Image
}

// SaveComparisonFigure Renders pairs as grid (one row per pair: input | translated) and writes PNG file
func SaveComparisonFigure(pairs []ComparisonPair, path string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("Nothing to render into '%s'", path)
	}
	plots := make([][]*plot.Plot, len(pairs))
	for i, pair := range pairs {
		plots[i] = []*plot.Plot{
			imagePlot(pair.Input, FigureInputTitle),
			imagePlot(pair.Translated, FigureTranslatedTitle),
		}
	}
	width := 10 * vg.Inch
	height := vg.Length(len(pairs)) * 3.75 * vg.Inch
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(pairs),
		Cols: 2,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			plots[i][j].Draw(canvases[i][j])
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't create directory for '%s'", path))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't create figure file '%s'", path))
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't write figure into '%s'", path))
	}
	return f.Close()
}

func imagePlot(img image.Image, title string) *plot.Plot {
	bounds := img.Bounds()
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(plotter.NewImage(img, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
	return p
}

// Visualize Translates the first image of each of numSamples batches and saves comparison figure.
//
// ds - dataset of source domain of translator
// tr - inference graph of generator
// numSamples - number of batches (rows of figure)
// path - output PNG file
//
func Visualize(ds *Dataset, tr *Translator, numSamples int, path string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	batches := ds.Take(numSamples)
	if len(batches) == 0 {
		return fmt.Errorf("Dataset has no samples to translate (%s)", tr.Direction())
	}
	pairs := make([]ComparisonPair, 0, len(batches))
	for i, batch := range batches {
		source, err := batch.Image(0)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't take image from batch #%d", i))
		}
		translated, err := tr.Translate(source)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't translate image from batch #%d", i))
		}
		values := float64s(translated)
		logger.Printf("[%s] Sample #%d: output range [%.4f, %.4f]\n", tr.Direction(), i, floats.Min(values), floats.Max(values))
		inputImg, err := TensorToImage(source)
		if err != nil {
			return errors.Wrap(err, "Can't denormalize input image")
		}
		translatedImg, err := TensorToImage(translated)
		if err != nil {
			return errors.Wrap(err, "Can't denormalize translated image")
		}
		pairs = append(pairs, ComparisonPair{Input: inputImg, Translated: translatedImg})
	}
	if err := SaveComparisonFigure(pairs, path); err != nil {
		return err
	}
	logger.Printf("[%s] Figure with %d samples has been saved to '%s'\n", tr.Direction(), len(pairs), path)
	return nil
}
