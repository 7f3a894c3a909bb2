package cyclegan_go

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// smallConfig Tiny architecture which keeps tests fast
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.ImageHeight = 32
	cfg.ImageWidth = 32
	cfg.Filters = 4
	cfg.NumResidualBlocks = 1
	cfg.DiscriminatorFilters = 4
	cfg.BatchSize = 2
	return cfg
}

func randomBatch(seed int64, shape ...int) *tensor.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func TestGeneratorShape(t *testing.T) {
	cfg := smallConfig()
	g := gorgonia.NewGraph()
	generator, err := ResnetGenerator(g, GeneratorGName, cfg, nil)
	require.NoError(t, err)
	input := inputNode(g, "input", randomBatch(1, 2, 3, 32, 32).Data().([]float64), 2, 3, 32, 32)
	require.NoError(t, generator.Fwd(input))
	assert.Equal(t, tensor.Shape{2, 3, 32, 32}, generator.Out().Shape())

	out := runNode(t, g, generator.Out())
	assert.Equal(t, tensor.Shape{2, 3, 32, 32}, out.Shape())
	for _, v := range out.Data().([]float64) {
		require.True(t, v >= -1 && v <= 1, "value %v is out of range", v)
	}
}

func TestGeneratorParameters(t *testing.T) {
	cfg := smallConfig()
	generator, err := ResnetGenerator(gorgonia.NewGraph(), GeneratorFName, cfg, nil)
	require.NoError(t, err)
	params, err := generator.Parameters()
	require.NoError(t, err)
	// stem conv+norm, 2 down conv+norm, residual 2 conv+2 norm, 2 up conv+norm, head conv+bias
	assert.Len(t, params, 1+2+2*(1+2)+(2+4)+2*(1+2)+2)
	for _, name := range params.Names() {
		assert.True(t, strings.HasPrefix(name, GeneratorFName+"/"), name)
	}
	assert.Equal(t, tensor.Shape{4, 3, 7, 7}, params[GeneratorFName+"/conv_0/w"].Shape())
	assert.Equal(t, tensor.Shape{4, 1}, params[GeneratorFName+"/instance_norm_1/gamma"].Shape())

	restored, err := ResnetGenerator(gorgonia.NewGraph(), GeneratorFName, cfg, params)
	require.NoError(t, err)
	restoredParams, err := restored.Parameters()
	require.NoError(t, err)
	for name, value := range params {
		assert.Equal(t, value.Data(), restoredParams[name].Data(), name)
	}
}

func TestParameterMismatch(t *testing.T) {
	cfg := smallConfig()
	generator, err := ResnetGenerator(gorgonia.NewGraph(), GeneratorGName, cfg, nil)
	require.NoError(t, err)
	params, err := generator.Parameters()
	require.NoError(t, err)

	missing := params.Clone()
	delete(missing, GeneratorGName+"/conv_0/w")
	_, err = ResnetGenerator(gorgonia.NewGraph(), GeneratorGName, cfg, missing)
	assert.Error(t, err)

	extra := params.Clone()
	extra[GeneratorGName+"/conv_99/w"] = tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float64{0}))
	_, err = ResnetGenerator(gorgonia.NewGraph(), GeneratorGName, cfg, extra)
	assert.Error(t, err)

	wider := cfg
	wider.Filters = 8
	_, err = ResnetGenerator(gorgonia.NewGraph(), GeneratorGName, wider, params)
	assert.Error(t, err)

	deeper := cfg
	deeper.NumResidualBlocks = 2
	_, err = ResnetGenerator(gorgonia.NewGraph(), GeneratorGName, deeper, params)
	assert.Error(t, err)
}

func TestDiscriminatorShape(t *testing.T) {
	cfg := smallConfig()
	g := gorgonia.NewGraph()
	discriminator, err := PatchDiscriminator(g, DiscriminatorXName, cfg, nil)
	require.NoError(t, err)
	input := inputNode(g, "input", randomBatch(2, 2, 3, 32, 32).Data().([]float64), 2, 3, 32, 32)
	logits, err := discriminator.Apply(input)
	require.NoError(t, err)
	size := DiscriminatorOutputSize(32)
	assert.Equal(t, 4, size)
	assert.Equal(t, tensor.Shape{2, 1, size, size}, logits.Shape())
	out := runNode(t, g, logits)
	assert.Equal(t, tensor.Shape{2, 1, size, size}, out.Shape())

	params, err := discriminator.Parameters()
	require.NoError(t, err)
	// first conv+bias, 3 blocks conv+norm, last conv+bias
	assert.Len(t, params, 2+3*3+2)
	assert.Equal(t, tensor.Shape{32, 16, 4, 4}, params[DiscriminatorXName+"/conv_5/w"].Shape())
}

func TestDiscriminatorOddInput(t *testing.T) {
	cfg := smallConfig()
	g := gorgonia.NewGraph()
	discriminator, err := PatchDiscriminator(g, DiscriminatorYName, cfg, nil)
	require.NoError(t, err)
	input := inputNode(g, "input", randomBatch(3, 1, 3, 9, 9).Data().([]float64), 1, 3, 9, 9)
	logits, err := discriminator.Apply(input)
	require.NoError(t, err)
	// 9 => 5 => 3 => 2 => 2 => 2
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, logits.Shape())
	assert.Equal(t, 2, DiscriminatorOutputSize(9))
	out := runNode(t, g, logits)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
}

func TestDiscriminatorOutputSize(t *testing.T) {
	assert.Equal(t, 32, DiscriminatorOutputSize(256))
	assert.Equal(t, 16, DiscriminatorOutputSize(128))
	assert.Equal(t, 8, DiscriminatorOutputSize(64))
	assert.Equal(t, 1, DiscriminatorOutputSize(8))
}

func TestNetworkAssign(t *testing.T) {
	cfg := smallConfig()
	first, err := PatchDiscriminator(gorgonia.NewGraph(), DiscriminatorYName, cfg, nil)
	require.NoError(t, err)
	second, err := PatchDiscriminator(gorgonia.NewGraph(), DiscriminatorYName, cfg, nil)
	require.NoError(t, err)
	params, err := first.Parameters()
	require.NoError(t, err)
	require.NoError(t, second.Assign(params))
	assigned, err := second.Parameters()
	require.NoError(t, err)
	for name, value := range params {
		assert.Equal(t, value.Data(), assigned[name].Data(), name)
	}

	delete(params, params.Names()[0])
	assert.Error(t, second.Assign(params))
}

func TestLayerTypeString(t *testing.T) {
	assert.Equal(t, "conv", LayerConvolutional.String())
	assert.Equal(t, "residual", LayerResidual.String())
	assert.True(t, noWeightsAllowed(LayerInstanceNorm))
	assert.False(t, noWeightsAllowed(LayerConvolutional))
}
