package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Translator Inference graph of a single generator: no gradients, no solver.
// Generator parameters are taken from the model at construction time.
type Translator struct {
	direction Direction
	g         *gorgonia.ExprGraph
	input     *gorgonia.Node
	out       gorgonia.Value
	vm        gorgonia.VM
	height    int
	width     int
}

// NewTranslator Builds inference graph for generator of provided direction
func (m *CycleGAN) NewTranslator(direction Direction) (*Translator, error) {
	params, ok := m.params[direction.GeneratorName()]
	if !ok {
		return nil, fmt.Errorf("Network '%s' does not exist", direction.GeneratorName())
	}
	g := gorgonia.NewGraph()
	generator, err := ResnetGenerator(g, direction.GeneratorName(), m.cfg, params)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't define generator for %s", direction))
	}
	input := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, ImageChannels, m.cfg.ImageHeight, m.cfg.ImageWidth), gorgonia.WithName("translator_input"))
	if err := generator.Fwd(input); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't feedforward generator for %s", direction))
	}
	out := generator.Out()
	tr := &Translator{
		direction: direction,
		g:         g,
		input:     input,
		height:    m.cfg.ImageHeight,
		width:     m.cfg.ImageWidth,
	}
	gorgonia.Read(out, &tr.out)
	tr.vm = gorgonia.NewTapeMachine(g)
	return tr, nil
}

// Direction Returns translation direction
func (tr *Translator) Direction() Direction {
	return tr.direction
}

// Translate Runs generator on single normalized image (3, H, W) or (1, 3, H, W).
// Output has the same shape as input, values are in [-1, 1].
func (tr *Translator) Translate(img *tensor.Dense) (*tensor.Dense, error) {
	shp := img.Shape().Clone()
	expected := tensor.Shape{ImageChannels, tr.height, tr.width}
	switch {
	case shp.Eq(expected):
	case shp.Eq(tensor.Shape{1, ImageChannels, tr.height, tr.width}):
	default:
		return nil, fmt.Errorf("Translator %s expects image of shape %v, but got %v", tr.direction, expected, shp)
	}
	input := img.Clone().(*tensor.Dense)
	if err := input.Reshape(1, ImageChannels, tr.height, tr.width); err != nil {
		return nil, errors.Wrap(err, "Can't reshape image into batch of one")
	}
	if err := gorgonia.Let(tr.input, input); err != nil {
		return nil, errors.Wrap(err, "Can't init input value")
	}
	defer tr.vm.Reset()
	if err := tr.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run VM")
	}
	outDense, ok := tr.out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Generator output is %T, but *tensor.Dense is expected", tr.out)
	}
	translated := outDense.Clone().(*tensor.Dense)
	if err := translated.Reshape(shp...); err != nil {
		return nil, errors.Wrap(err, "Can't reshape generator output")
	}
	return translated, nil
}

// Close Releases tape machine
func (tr *Translator) Close() error {
	return tr.vm.Close()
}
