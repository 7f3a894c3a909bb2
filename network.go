package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network Abstraction for neural network.
//
// Layers - simple sequence of layers
// out - alias to activated output of last layer
// consts - constant nodes (selection matrices, epsilons) shared by all applications of the network
//
type Network struct {
	Name   string
	Layers []*Layer
	out    *gorgonia.Node
	consts *constantPool
}

func newNetwork(g *gorgonia.ExprGraph, name string, layers []*Layer) *Network {
	return &Network{
		Name:   name,
		Layers: layers,
		consts: newConstantPool(g, name),
	}
}

// Out Returns reference to output node
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = l.learnables(learnables)
		}
	}
	return learnables
}

// Fwd Initializates feedforward for provided input and remembers the output
//
// input - Input node (NCHW)
//
func (net *Network) Fwd(input *gorgonia.Node) error {
	out, err := net.Apply(input)
	if err != nil {
		return err
	}
	net.out = out
	return nil
}

// Apply Feedforward provided input through the network and returns activated output of last layer.
// Could be called several times on the same graph: learnables are shared between applications.
func (net *Network) Apply(input *gorgonia.Node) (*gorgonia.Node, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}

	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("Network must have one layer atleast")
	}

	lastActivatedLayer := input
	for i, l := range net.Layers {
		if l == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := l.Fwd(lastActivatedLayer, net.consts)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't feedforward input before activation", networkName, i))
		}
		// Activate i-th layer's output
		layerActivated, err := l.activate(layerNonActivated)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of %s's layer #%d", networkName, i))
		}
		lastActivatedLayer = layerActivated
	}
	return lastActivatedLayer, nil
}

// Parameters Returns copy of current values of learnables keyed by node name
func (net *Network) Parameters() (Parameters, error) {
	params := make(Parameters)
	for _, n := range net.Learnables() {
		value, ok := n.Value().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("Learnable '%s' has no dense value", n.Name())
		}
		params[n.Name()] = value.Clone().(*tensor.Dense)
	}
	return params, nil
}

// Assign Copies provided values into learnables in place. Every learnable must be present with exactly the same shape.
func (net *Network) Assign(params Parameters) error {
	for _, n := range net.Learnables() {
		src, ok := params[n.Name()]
		if !ok {
			return fmt.Errorf("No value for learnable '%s'", n.Name())
		}
		dst, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Learnable '%s' has no dense value", n.Name())
		}
		if !dst.Shape().Eq(src.Shape()) {
			return fmt.Errorf("Learnable '%s' has shape %v, but provided value has shape %v", n.Name(), dst.Shape(), src.Shape())
		}
		values := float64s(src)
		if data, ok := dst.Data().([]float64); ok {
			copy(data, values)
			continue
		}
		for i, v := range values {
			dst.Set(i, v)
		}
	}
	return nil
}
