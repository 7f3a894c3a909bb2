package cyclegan_go

import (
	"bytes"
	"image/png"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestSaveComparisonFigure(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pairs := make([]ComparisonPair, 4)
	for i := range pairs {
		pairs[i] = ComparisonPair{Input: randomRGBA(rng, 16, 16), Translated: randomRGBA(rng, 16, 16)}
	}
	path := filepath.Join(t.TempDir(), "results", "figure.png")
	require.NoError(t, SaveComparisonFigure(pairs, path))
	decodePNG(t, path)

	assert.Error(t, SaveComparisonFigure(nil, path))
}

func TestVisualize(t *testing.T) {
	cfg := smallConfig()
	model, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	ds, err := NewDataset(rawSetOf(3, 40, LabelDomainB), TestPreprocessor(cfg.ImageHeight, cfg.ImageWidth), DatasetOptions{BatchSize: 1, Seed: 4})
	require.NoError(t, err)
	tr, err := model.NewTranslator(BToA)
	require.NoError(t, err)
	defer tr.Close()

	logs := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), BToA.FigureName())
	// Dataset is shorter than requested number of samples: every batch is used
	require.NoError(t, Visualize(ds, tr, 4, path, log.New(logs, "", 0)))
	decodePNG(t, path)
	assert.Contains(t, logs.String(), "[B2A] Sample #2")
	assert.NotContains(t, logs.String(), "Sample #3")

	empty, err := NewDataset(&RawSet{}, TestPreprocessor(cfg.ImageHeight, cfg.ImageWidth), DatasetOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.Error(t, Visualize(empty, tr, 4, path, nil))
}

func TestPlotLosses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "losses.png")
	history := []Losses{
		{G: 5, F: 5.5, DX: 0.4, DY: 0.45},
		{G: 4, F: 4.2, DX: 0.3, DY: 0.25},
	}
	require.NoError(t, PlotLosses(history, path))
	decodePNG(t, path)
	assert.Error(t, PlotLosses(nil, path))
}
