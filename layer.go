package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// WeightNode - convolution kernel with shape (out channels, in channels, kernel height, kernel width)
// BiasNode - per-channel bias with shape (channels, 1)
// GammaNode, BetaNode - per-channel scale and shift of instance normalization with shape (channels, 1)
// Padding - zero padding for convolutions, reflection size for LayerReflectionPad
// SamePadding - convolution pads input so that output size is ceil(input size / stride), Padding is ignored
// Stride - convolution stride, or upsampling factor for LayerTransposedConvolutional
// Block - sequence of layers wrapped by identity skip connection (LayerResidual only)
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	GammaNode  *gorgonia.Node
	BetaNode   *gorgonia.Node

	Activation        ActivationFunc
	ActivationOptions []Options
	Type              LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	SamePadding  bool
	Stride       []int
	Dilation     []int
	Epsilon      float64

	Block []*Layer
}

type LayerType uint16

const (
	LayerConvolutional = LayerType(iota)
	LayerTransposedConvolutional
	LayerInstanceNorm
	LayerReflectionPad
	LayerResidual
)

func (lt LayerType) String() string {
	switch lt {
	case LayerConvolutional:
		return "conv"
	case LayerTransposedConvolutional:
		return "conv_transpose"
	case LayerInstanceNorm:
		return "instance_norm"
	case LayerReflectionPad:
		return "reflection_pad"
	case LayerResidual:
		return "residual"
	default:
		return fmt.Sprintf("layer_type_%d", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerInstanceNorm, LayerReflectionPad, LayerResidual}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// learnables Appends learnable nodes of layer (and of its block) to provided slice
func (l *Layer) learnables(nodes gorgonia.Nodes) gorgonia.Nodes {
	for _, n := range []*gorgonia.Node{l.WeightNode, l.BiasNode, l.GammaNode, l.BetaNode} {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	for _, sub := range l.Block {
		if sub != nil {
			nodes = sub.learnables(nodes)
		}
	}
	return nodes
}

// activate Applies layer's activation function (identity when none is set)
func (l *Layer) activate(a *gorgonia.Node) (*gorgonia.Node, error) {
	if l.Activation == nil {
		return a, nil
	}
	return l.Activation(a, l.ActivationOptions...)
}

// Fwd Feedforward input through the layer. Activation is not applied here.
//
// input - Input node with NCHW layout
// consts - pool of constant nodes of the network that owns the layer
//
func (l *Layer) Fwd(input *gorgonia.Node, consts *constantPool) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("Layer of type '%s' has nil WeightNode", l.Type)
	}
	if input.Dims() != 4 {
		return nil, fmt.Errorf("Layer of type '%s' expects NCHW input, but got shape %v", l.Type, input.Shape())
	}
	switch l.Type {
	case LayerConvolutional:
		padding := l.Padding
		if l.SamePadding {
			if len(l.Stride) != 2 {
				return nil, fmt.Errorf("Same padding needs stride for both spatial axes, but got %v", l.Stride)
			}
			var err error
			input, padding, err = consts.samePad(input, l.KernelHeight, l.KernelWidth, l.Stride)
			if err != nil {
				return nil, errors.Wrap(err, "Can't pad input of convolution")
			}
		}
		out, err := gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
		if l.BiasNode == nil {
			return out, nil
		}
		out, err = consts.channelwise(out, l.BiasNode, gorgonia.BroadcastAdd)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to convolution output")
		}
		return out, nil
	case LayerTransposedConvolutional:
		if len(l.Stride) != 2 {
			return nil, fmt.Errorf("Transposed convolution needs stride for both spatial axes, but got %v", l.Stride)
		}
		dilated, err := consts.insertZeros(input, l.Stride[0], l.Stride[1])
		if err != nil {
			return nil, errors.Wrap(err, "Can't insert zeros between input elements")
		}
		out, err := gorgonia.Conv2d(dilated, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, []int{1, 1}, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] dilated input by kernel")
		}
		if l.BiasNode == nil {
			return out, nil
		}
		out, err = consts.channelwise(out, l.BiasNode, gorgonia.BroadcastAdd)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to transposed convolution output")
		}
		return out, nil
	case LayerInstanceNorm:
		if l.GammaNode == nil || l.BetaNode == nil {
			return nil, fmt.Errorf("Instance normalization needs both gamma and beta nodes")
		}
		return consts.instanceNorm(input, l.GammaNode, l.BetaNode, l.Epsilon)
	case LayerReflectionPad:
		if len(l.Padding) != 2 {
			return nil, fmt.Errorf("Reflection padding needs size for both spatial axes, but got %v", l.Padding)
		}
		return consts.reflectionPad(input, l.Padding[0], l.Padding[1])
	case LayerResidual:
		if len(l.Block) == 0 {
			return nil, fmt.Errorf("Residual layer must have one layer in block atleast")
		}
		last := input
		for i, sub := range l.Block {
			if sub == nil {
				return nil, fmt.Errorf("Residual block's layer #%d is nil", i)
			}
			nonActivated, err := sub.Fwd(last, consts)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("[Residual block, Layer #%d] Can't feedforward input before activation", i))
			}
			activated, err := sub.activate(nonActivated)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of residual block's layer #%d", i))
			}
			last = activated
		}
		sum, err := gorgonia.Add(input, last)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add skip connection to residual block output")
		}
		return sum, nil
	default:
		return nil, fmt.Errorf("Layer's type '%d' (uint16) is not handled", l.Type)
	}
}
