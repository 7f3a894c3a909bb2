package cyclegan_go

import (
	"fmt"
	"sort"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Parameters Values of network's learnables keyed by full parameter name ("<network>/<layer>/<param>")
type Parameters map[string]*tensor.Dense

// Names Returns sorted parameter names
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone Deep copy of parameters
func (p Parameters) Clone() Parameters {
	cloned := make(Parameters, len(p))
	for name, value := range p {
		cloned[name] = value.Clone().(*tensor.Dense)
	}
	return cloned
}

// float64s Returns copy of values of float64 tensor in row-major order
func float64s(t *tensor.Dense) []float64 {
	switch data := t.Data().(type) {
	case []float64:
		cp := make([]float64, len(data))
		copy(cp, data)
		return cp
	case float64:
		return []float64{data}
	}
	return nil
}

// paramBuilder Creates learnable nodes for a network definition.
// With nil values learnables get initialized by provided init functions,
// otherwise every learnable must be found in values with identical shape and
// every value must be consumed (see finish).
type paramBuilder struct {
	g      *gorgonia.ExprGraph
	prefix string
	values Parameters
	used   map[string]bool
	layers int
}

func newParamBuilder(g *gorgonia.ExprGraph, prefix string, values Parameters) *paramBuilder {
	return &paramBuilder{
		g:      g,
		prefix: prefix,
		values: values,
		used:   make(map[string]bool),
	}
}

// layerName Unique name of the next layer with given kind
func (b *paramBuilder) layerName(kind string) string {
	name := fmt.Sprintf("%s_%d", kind, b.layers)
	b.layers++
	return name
}

func (b *paramBuilder) param(layer, param string, init gorgonia.InitWFn, shape ...int) (*gorgonia.Node, error) {
	name := fmt.Sprintf("%s/%s/%s", b.prefix, layer, param)
	opts := []gorgonia.NodeConsOpt{gorgonia.WithShape(shape...), gorgonia.WithName(name)}
	if b.values == nil {
		opts = append(opts, gorgonia.WithInit(init))
	} else {
		value, ok := b.values[name]
		if !ok {
			return nil, fmt.Errorf("Parameter '%s' is missing", name)
		}
		if !value.Shape().Eq(tensor.Shape(shape)) {
			return nil, fmt.Errorf("Parameter '%s' has shape %v, but architecture needs %v", name, value.Shape(), tensor.Shape(shape))
		}
		if value.Dtype() != tensor.Float64 {
			return nil, fmt.Errorf("Parameter '%s' has dtype %v, but architecture needs %v", name, value.Dtype(), tensor.Float64)
		}
		b.used[name] = true
		opts = append(opts, gorgonia.WithValue(value.Clone()))
	}
	return gorgonia.NewTensor(b.g, gorgonia.Float64, len(shape), opts...), nil
}

// finish Reports provided values which architecture does not have
func (b *paramBuilder) finish() error {
	if b.values == nil {
		return nil
	}
	for _, name := range b.values.Names() {
		if !b.used[name] {
			return fmt.Errorf("Parameter '%s' does not belong to architecture of '%s'", name, b.prefix)
		}
	}
	return nil
}

// convolutional Convolution layer with kernel (out, in, k, k)
func (b *paramBuilder) convolutional(in, out, kernel, stride, padding int, bias bool, init gorgonia.InitWFn, activation ActivationFunc) (*Layer, error) {
	name := b.layerName("conv")
	w, err := b.param(name, "w", init, out, in, kernel, kernel)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		WeightNode:   w,
		Type:         LayerConvolutional,
		Activation:   activation,
		KernelHeight: kernel,
		KernelWidth:  kernel,
		Padding:      []int{padding, padding},
		Stride:       []int{stride, stride},
		Dilation:     []int{1, 1},
	}
	if bias {
		l.BiasNode, err = b.param(name, "b", gorgonia.Zeroes(), out, 1)
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

// sameConvolutional Convolution layer which keeps ceil(size/stride) output size for any input size
func (b *paramBuilder) sameConvolutional(in, out, kernel, stride int, bias bool, init gorgonia.InitWFn, activation ActivationFunc) (*Layer, error) {
	l, err := b.convolutional(in, out, kernel, stride, 0, bias, init, activation)
	if err != nil {
		return nil, err
	}
	l.SamePadding = true
	return l, nil
}

// transposedConvolutional Transposed convolution which multiplies spatial size by stride
func (b *paramBuilder) transposedConvolutional(in, out, kernel, stride int, init gorgonia.InitWFn, activation ActivationFunc) (*Layer, error) {
	name := b.layerName("conv_transpose")
	w, err := b.param(name, "w", init, out, in, kernel, kernel)
	if err != nil {
		return nil, err
	}
	return &Layer{
		WeightNode:   w,
		Type:         LayerTransposedConvolutional,
		Activation:   activation,
		KernelHeight: kernel,
		KernelWidth:  kernel,
		Padding:      []int{kernel / 2, kernel / 2},
		Stride:       []int{stride, stride},
		Dilation:     []int{1, 1},
	}, nil
}

func (b *paramBuilder) instanceNorm(channels int, gammaInit gorgonia.InitWFn, activation ActivationFunc, activationOpts ...Options) (*Layer, error) {
	name := b.layerName("instance_norm")
	gamma, err := b.param(name, "gamma", gammaInit, channels, 1)
	if err != nil {
		return nil, err
	}
	beta, err := b.param(name, "beta", gorgonia.Zeroes(), channels, 1)
	if err != nil {
		return nil, err
	}
	return &Layer{
		GammaNode:         gamma,
		BetaNode:          beta,
		Type:              LayerInstanceNorm,
		Activation:        activation,
		ActivationOptions: activationOpts,
		Epsilon:           InstanceNormEpsilon,
	}, nil
}

func reflectionPad(pad int) *Layer {
	return &Layer{
		Type:       LayerReflectionPad,
		Activation: NoActivation,
		Padding:    []int{pad, pad},
	}
}
