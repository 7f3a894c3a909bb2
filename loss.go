package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LossReduction How element-wise losses are reduced into scalar
type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(sqr)
	case LossReductionMean:
		return gorgonia.Mean(sqr)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
// Default reduction is 'mean'
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}

	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(abs)
	case LossReductionMean:
		return gorgonia.Mean(abs)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// constantLike Constant node of the same shape as provided node filled with given value.
// Name must be unique within the graph.
func constantLike(a *gorgonia.Node, name string, value float64) *gorgonia.Node {
	backing := make([]float64, a.Shape().TotalSize())
	for i := range backing {
		backing[i] = value
	}
	t := tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(backing))
	return gorgonia.NewTensor(a.Graph(), gorgonia.Float64, a.Dims(), gorgonia.WithShape(a.Shape().Clone()...), gorgonia.WithName(name), gorgonia.WithValue(t))
}

// AdversarialLoss Least squares GAN loss: mean((D(x) - target)^2) where target is filled with provided label (1 - real, 0 - fake)
func AdversarialLoss(logits *gorgonia.Node, label float64, name string) (*gorgonia.Node, error) {
	target := constantLike(logits, name+"_target", label)
	loss, err := MSELoss(logits, target)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't define adversarial loss '%s'", name))
	}
	return loss, nil
}
