package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const (
	// GeneratorGName Generator translating domain A into domain B
	GeneratorGName = "generator_G"
	// GeneratorFName Generator translating domain B into domain A
	GeneratorFName = "generator_F"
	// DiscriminatorXName Discriminator of domain A images
	DiscriminatorXName = "discriminator_X"
	// DiscriminatorYName Discriminator of domain B images
	DiscriminatorYName = "discriminator_Y"
)

// NetworkNames Names of all four networks of CycleGAN
var NetworkNames = []string{GeneratorGName, GeneratorFName, DiscriminatorXName, DiscriminatorYName}

// Direction Translation direction
type Direction int

const (
	AToB = Direction(iota)
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "A2B"
	case BToA:
		return "B2A"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// GeneratorName Returns name of generator which translates in this direction
func (d Direction) GeneratorName() string {
	if d == BToA {
		return GeneratorFName
	}
	return GeneratorGName
}

// FigureName Returns file name of comparison figure for this direction
func (d Direction) FigureName() string {
	return fmt.Sprintf("generated_sample_%s.png", d.String())
}

// parameterized Network with named learnables which values could be read and replaced
type parameterized interface {
	Name() string
	Learnables() gorgonia.Nodes
	Apply(input *gorgonia.Node) (*gorgonia.Node, error)
	Parameters() (Parameters, error)
	Assign(params Parameters) error
}

// CycleGAN Composite model: two generators (G: A->B, F: B->A) and two discriminators (X for A, Y for B).
//
// Model holds only values of learnables (one set per network). Graphs for inference (see NewTranslator)
// and training (see NewTrainer) are built from them on demand.
//
type CycleGAN struct {
	cfg    Config
	params map[string]Parameters
}

// NewCycleGAN Creates model with randomly initialized networks
func NewCycleGAN(cfg Config) (*CycleGAN, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}
	m := &CycleGAN{
		cfg:    cfg,
		params: make(map[string]Parameters, len(NetworkNames)),
	}
	for _, name := range NetworkNames {
		net, err := m.define(gorgonia.NewGraph(), name, nil)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't initialize '%s'", name))
		}
		params, err := net.Parameters()
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't read initial parameters of '%s'", name))
		}
		m.params[name] = params
	}
	return m, nil
}

// Config Returns configuration model has been created with
func (m *CycleGAN) Config() Config {
	return m.cfg
}

// Parameters Returns copy of parameters of given network
func (m *CycleGAN) Parameters(name string) (Parameters, error) {
	params, ok := m.params[name]
	if !ok {
		return nil, fmt.Errorf("Network '%s' does not exist", name)
	}
	return params.Clone(), nil
}

// SetParameters Replaces parameters of given network. Every parameter of the architecture must be
// provided with exactly the same shape, and no extra parameters are allowed.
func (m *CycleGAN) SetParameters(name string, params Parameters) error {
	if _, ok := m.params[name]; !ok {
		return fmt.Errorf("Network '%s' does not exist", name)
	}
	if params == nil {
		return fmt.Errorf("Parameters of '%s' are nil", name)
	}
	if _, err := m.define(gorgonia.NewGraph(), name, params); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Parameters do not match architecture of '%s'", name))
	}
	m.params[name] = params.Clone()
	return nil
}

// define Defines network with given name on provided graph. Nil params means random initialization.
func (m *CycleGAN) define(g *gorgonia.ExprGraph, name string, params Parameters) (parameterized, error) {
	switch name {
	case GeneratorGName, GeneratorFName:
		return ResnetGenerator(g, name, m.cfg, params)
	case DiscriminatorXName, DiscriminatorYName:
		return PatchDiscriminator(g, name, m.cfg, params)
	default:
		return nil, fmt.Errorf("Network '%s' does not exist", name)
	}
}

// defineStored Defines network with current parameters of the model
func (m *CycleGAN) defineStored(g *gorgonia.ExprGraph, name string) (parameterized, error) {
	params, ok := m.params[name]
	if !ok {
		return nil, fmt.Errorf("Network '%s' does not exist", name)
	}
	return m.define(g, name, params)
}
