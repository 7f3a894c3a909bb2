package cyclegan_go

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const (
	// InstanceNormEpsilon Variance epsilon of instance normalization
	InstanceNormEpsilon = 1e-3
	// InitStdDev Standard deviation of normal initializer for kernels and instance normalization gamma
	InitStdDev = 0.02
	// GeneratorStemPadding Reflection padding around 7x7 stem and head convolutions
	GeneratorStemPadding = 3
)

// GeneratorNet ResNet-style generator: encoder, residual blocks, decoder.
//
//	c7s1-64 => d128 => d256 => R256 x 9 => u128 => u64 => c7s1-3 (tanh)
//
type GeneratorNet struct {
	private *Network
}

// ResnetGenerator Defines generator on provided graph.
//
// name - network name, prefix of every learnable
// cfg - architecture settings (filters and block counts)
// params - values of learnables. If nil, learnables are initialized randomly
//
func ResnetGenerator(g *gorgonia.ExprGraph, name string, cfg Config, params Parameters) (*GeneratorNet, error) {
	b := newParamBuilder(g, name, params)
	kernelInit := gorgonia.Gaussian(0, InitStdDev)
	gammaInit := gorgonia.Gaussian(0, InitStdDev)

	filters := cfg.Filters
	layers := []*Layer{reflectionPad(GeneratorStemPadding)}
	stem, err := b.convolutional(ImageChannels, filters, 7, 1, 0, false, kernelInit, NoActivation)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define stem convolution")
	}
	stemNorm, err := b.instanceNorm(filters, gammaInit, Rectify)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define stem normalization")
	}
	layers = append(layers, stem, stemNorm)

	// Downsampling
	for i := 0; i < cfg.NumDownsamplingBlocks; i++ {
		conv, err := b.convolutional(filters, filters*2, 3, 2, 1, false, kernelInit, NoActivation)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define downsampling block #%d", i)
		}
		filters *= 2
		norm, err := b.instanceNorm(filters, gammaInit, Rectify)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define downsampling block #%d", i)
		}
		layers = append(layers, conv, norm)
	}

	// Residual blocks
	for i := 0; i < cfg.NumResidualBlocks; i++ {
		block, err := residualBlock(b, filters, kernelInit, gammaInit)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define residual block #%d", i)
		}
		layers = append(layers, block)
	}

	// Upsampling
	for i := 0; i < cfg.NumUpsamplingBlocks; i++ {
		conv, err := b.transposedConvolutional(filters, filters/2, 3, 2, kernelInit, NoActivation)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define upsampling block #%d", i)
		}
		filters /= 2
		norm, err := b.instanceNorm(filters, gammaInit, Rectify)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define upsampling block #%d", i)
		}
		layers = append(layers, conv, norm)
	}

	// Final block
	head, err := b.convolutional(filters, ImageChannels, 7, 1, 0, true, gorgonia.GlorotU(1.0), Tanh)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define output convolution")
	}
	layers = append(layers, reflectionPad(GeneratorStemPadding), head)

	if err := b.finish(); err != nil {
		return nil, err
	}
	return &GeneratorNet{private: newNetwork(g, name, layers)}, nil
}

// residualBlock Two reflect-padded 3x3 convolutions with normalization, summed with block input
func residualBlock(b *paramBuilder, channels int, kernelInit, gammaInit gorgonia.InitWFn) (*Layer, error) {
	conv1, err := b.convolutional(channels, channels, 3, 1, 0, false, kernelInit, NoActivation)
	if err != nil {
		return nil, err
	}
	norm1, err := b.instanceNorm(channels, gammaInit, Rectify)
	if err != nil {
		return nil, err
	}
	conv2, err := b.convolutional(channels, channels, 3, 1, 0, false, kernelInit, NoActivation)
	if err != nil {
		return nil, err
	}
	norm2, err := b.instanceNorm(channels, gammaInit, NoActivation)
	if err != nil {
		return nil, err
	}
	return &Layer{
		Type:       LayerResidual,
		Activation: NoActivation,
		Block:      []*Layer{reflectionPad(1), conv1, norm1, reflectionPad(1), conv2, norm2},
	}, nil
}

// Out Returns reference to output node
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.private.Out()
}

// Name Returns network name
func (net *GeneratorNet) Name() string {
	return net.private.Name
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input
func (net *GeneratorNet) Fwd(input *gorgonia.Node) error {
	if err := net.private.Fwd(input); err != nil {
		return errors.Wrap(err, "[Generator]")
	}
	return nil
}

// Apply Feedforward input through generator and return translated image node
func (net *GeneratorNet) Apply(input *gorgonia.Node) (*gorgonia.Node, error) {
	out, err := net.private.Apply(input)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	return out, nil
}

// Parameters Returns copy of learnables values
func (net *GeneratorNet) Parameters() (Parameters, error) {
	return net.private.Parameters()
}

// Assign Copies provided values into learnables
func (net *GeneratorNet) Assign(params Parameters) error {
	return net.private.Assign(params)
}
