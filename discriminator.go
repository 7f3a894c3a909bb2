package cyclegan_go

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DiscriminatorDownsamplingBlocks Number of normalized blocks after the first convolution of PatchGAN
const DiscriminatorDownsamplingBlocks = 3

// DiscriminatorNet PatchGAN discriminator: C64 => C128 => C256 => C512 => 1-channel map of raw logits.
type DiscriminatorNet struct {
	private *Network
}

// PatchDiscriminator Defines discriminator on provided graph.
//
// name - network name, prefix of every learnable
// cfg - architecture settings (base filters)
// params - values of learnables. If nil, learnables are initialized randomly
//
func PatchDiscriminator(g *gorgonia.ExprGraph, name string, cfg Config, params Parameters) (*DiscriminatorNet, error) {
	b := newParamBuilder(g, name, params)
	kernelInit := gorgonia.Gaussian(0, InitStdDev)
	gammaInit := gorgonia.Gaussian(0, InitStdDev)

	filters := cfg.DiscriminatorFilters
	first, err := b.sameConvolutional(ImageChannels, filters, 4, 2, true, kernelInit, LeakyRectify)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define first convolution")
	}
	layers := []*Layer{first}
	for i := 0; i < DiscriminatorDownsamplingBlocks; i++ {
		stride := 2
		if i == DiscriminatorDownsamplingBlocks-1 {
			stride = 1
		}
		conv, err := b.sameConvolutional(filters, filters*2, 4, stride, false, kernelInit, NoActivation)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define downsampling block #%d", i)
		}
		filters *= 2
		norm, err := b.instanceNorm(filters, gammaInit, LeakyRectify, Options{Alpha: DefaultLeakyAlpha})
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define downsampling block #%d", i)
		}
		layers = append(layers, conv, norm)
	}
	last, err := b.sameConvolutional(filters, 1, 4, 1, true, kernelInit, NoActivation)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define output convolution")
	}
	layers = append(layers, last)

	if err := b.finish(); err != nil {
		return nil, err
	}
	return &DiscriminatorNet{private: newNetwork(g, name, layers)}, nil
}

// Name Returns network name
func (net *DiscriminatorNet) Name() string {
	return net.private.Name
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Apply Feedforward input through discriminator and return patch logits node
func (net *DiscriminatorNet) Apply(input *gorgonia.Node) (*gorgonia.Node, error) {
	out, err := net.private.Apply(input)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	return out, nil
}

// Parameters Returns copy of learnables values
func (net *DiscriminatorNet) Parameters() (Parameters, error) {
	return net.private.Parameters()
}

// Assign Copies provided values into learnables
func (net *DiscriminatorNet) Assign(params Parameters) error {
	return net.private.Assign(params)
}

// DiscriminatorOutputSize Spatial size of patch map for provided input size.
// Every convolution is "same" padded, so only strides matter: 256 => 128 => 64 => 32 => 32 => 32.
func DiscriminatorOutputSize(size int) int {
	out := convOutputSize(size, 2)
	for i := 0; i < DiscriminatorDownsamplingBlocks; i++ {
		stride := 2
		if i == DiscriminatorDownsamplingBlocks-1 {
			stride = 1
		}
		out = convOutputSize(out, stride)
	}
	return convOutputSize(out, 1)
}

func convOutputSize(size, stride int) int {
	return (size + stride - 1) / stride
}
