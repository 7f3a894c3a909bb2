package cyclegan_go

import (
	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRectify Leaky ReLU. Slope for negative values is taken from the first option with non-zero Alpha, 0.2 otherwise
func LeakyRectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	for i := range opts {
		if opts[i].Alpha != 0 {
			return gorgonia.LeakyRelu(a, opts[i].Alpha)
		}
	}
	return gorgonia.LeakyRelu(a, DefaultLeakyAlpha)
}

// DefaultLeakyAlpha Negative slope used by discriminator blocks
const DefaultLeakyAlpha = 0.2

// Options Struct for holding options for certain activation functions.
type Options struct {
	Alpha float64
}
