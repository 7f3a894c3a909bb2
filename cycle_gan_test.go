package cyclegan_go

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, GeneratorGName, AToB.GeneratorName())
	assert.Equal(t, GeneratorFName, BToA.GeneratorName())
	assert.Equal(t, "generated_sample_A2B.png", AToB.FigureName())
	assert.Equal(t, "generated_sample_B2A.png", BToA.FigureName())
}

func TestNewCycleGAN(t *testing.T) {
	model, err := NewCycleGAN(smallConfig())
	require.NoError(t, err)
	for _, name := range NetworkNames {
		params, err := model.Parameters(name)
		require.NoError(t, err)
		assert.NotEmpty(t, params, name)
	}
	_, err = model.Parameters("generator_Z")
	assert.Error(t, err)

	invalid := smallConfig()
	invalid.NumUpsamplingBlocks = 1
	_, err = NewCycleGAN(invalid)
	assert.Error(t, err)
}

func TestSetParameters(t *testing.T) {
	model, err := NewCycleGAN(smallConfig())
	require.NoError(t, err)
	other, err := NewCycleGAN(smallConfig())
	require.NoError(t, err)

	params, err := other.Parameters(GeneratorGName)
	require.NoError(t, err)
	require.NoError(t, model.SetParameters(GeneratorGName, params))
	stored, err := model.Parameters(GeneratorGName)
	require.NoError(t, err)
	for name, value := range params {
		assert.Equal(t, value.Data(), stored[name].Data(), name)
	}

	// Generator parameters do not fit discriminator
	assert.Error(t, model.SetParameters(DiscriminatorXName, params))
	assert.Error(t, model.SetParameters(GeneratorFName, nil))
}

func TestTranslator(t *testing.T) {
	cfg := smallConfig()
	model, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	for _, direction := range []Direction{AToB, BToA} {
		tr, err := model.NewTranslator(direction)
		require.NoError(t, err)
		assert.Equal(t, direction, tr.Direction())

		img := randomBatch(3, 3, 32, 32)
		out, err := tr.Translate(img)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{3, 32, 32}, out.Shape())
		for _, v := range out.Data().([]float64) {
			require.True(t, v >= -1 && v <= 1, "value %v is out of range", v)
		}

		// Inference is deterministic and keeps input untouched
		again, err := tr.Translate(img)
		require.NoError(t, err)
		assert.InDeltaSlice(t, out.Data().([]float64), again.Data().([]float64), 1e-12)
		assert.Equal(t, tensor.Shape{3, 32, 32}, img.Shape())

		batched := img.Clone().(*tensor.Dense)
		require.NoError(t, batched.Reshape(1, 3, 32, 32))
		outBatched, err := tr.Translate(batched)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 3, 32, 32}, outBatched.Shape())

		_, err = tr.Translate(randomBatch(4, 3, 16, 16))
		assert.Error(t, err)
		require.NoError(t, tr.Close())
	}
}

func sumAbsDiff(a, b Parameters) float64 {
	diff := 0.0
	for name, value := range a {
		x := float64s(value)
		y := float64s(b[name])
		for i := range x {
			diff += math.Abs(x[i] - y[i])
		}
	}
	return diff
}

func TestTrainerStep(t *testing.T) {
	cfg := smallConfig()
	model, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	before := make(map[string]Parameters)
	for _, name := range NetworkNames {
		before[name], err = model.Parameters(name)
		require.NoError(t, err)
	}

	trainer, err := model.NewTrainer(cfg.BatchSize)
	require.NoError(t, err)
	defer trainer.Close()
	assert.Equal(t, cfg.BatchSize, trainer.BatchSize())
	assert.Equal(t, model, trainer.Model())

	realX := randomBatch(10, cfg.BatchSize, 3, 32, 32)
	realY := randomBatch(11, cfg.BatchSize, 3, 32, 32)
	losses, err := trainer.Step(realX, realY)
	require.NoError(t, err)
	for _, l := range []float64{losses.G, losses.F, losses.DX, losses.DY} {
		assert.False(t, math.IsNaN(l) || math.IsInf(l, 0))
		assert.Greater(t, l, 0.0)
	}

	for _, name := range NetworkNames {
		after, err := model.Parameters(name)
		require.NoError(t, err)
		assert.Greater(t, sumAbsDiff(before[name], after), 0.0, name)
	}

	// Frozen copies follow the updated model
	for _, name := range NetworkNames {
		for _, net := range trainer.graphs[name].frozen {
			frozen, err := net.Parameters()
			require.NoError(t, err)
			stored, err := model.Parameters(net.Name())
			require.NoError(t, err)
			assert.Zero(t, sumAbsDiff(stored, frozen), "%s in graph of %s", net.Name(), name)
		}
	}

	// Second step runs on the same graphs
	_, err = trainer.Step(realX, realY)
	require.NoError(t, err)
}

func TestTrainerRollback(t *testing.T) {
	cfg := smallConfig()
	model, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	other, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	trainer, err := model.NewTrainer(cfg.BatchSize)
	require.NoError(t, err)
	defer trainer.Close()

	for _, name := range NetworkNames {
		params, err := other.Parameters(name)
		require.NoError(t, err)
		require.NoError(t, trainer.graphs[name].trained.Assign(params))
	}
	cause := fmt.Errorf("solver failed")
	assert.Equal(t, cause, trainer.rollback(cause))
	for _, name := range NetworkNames {
		restored, err := trainer.graphs[name].trained.Parameters()
		require.NoError(t, err)
		stored, err := model.Parameters(name)
		require.NoError(t, err)
		assert.Zero(t, sumAbsDiff(stored, restored), name)
	}

	// Graphs stay usable after rollback
	_, err = trainer.Step(randomBatch(12, cfg.BatchSize, 3, 32, 32), randomBatch(13, cfg.BatchSize, 3, 32, 32))
	require.NoError(t, err)
}

func TestTrainerStepShapeMismatch(t *testing.T) {
	cfg := smallConfig()
	model, err := NewCycleGAN(cfg)
	require.NoError(t, err)
	trainer, err := model.NewTrainer(cfg.BatchSize)
	require.NoError(t, err)
	defer trainer.Close()

	good := randomBatch(1, cfg.BatchSize, 3, 32, 32)
	_, err = trainer.Step(randomBatch(2, cfg.BatchSize+1, 3, 32, 32), good)
	assert.Error(t, err)
	_, err = trainer.Step(good, randomBatch(3, cfg.BatchSize, 3, 16, 16))
	assert.Error(t, err)

	_, err = model.NewTrainer(0)
	assert.Error(t, err)
}

func TestLossesString(t *testing.T) {
	l := Losses{G: 1, F: 2, DX: 0.5, DY: 0.25}
	assert.Equal(t, "G: 1.00000, F: 2.00000, D_X: 0.50000, D_Y: 0.25000", l.String())
}
