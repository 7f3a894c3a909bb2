package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Losses Loss values of a single training step
type Losses struct {
	G  float64
	F  float64
	DX float64
	DY float64
}

func (l Losses) String() string {
	return fmt.Sprintf("G: %.5f, F: %.5f, D_X: %.5f, D_Y: %.5f", l.G, l.F, l.DX, l.DY)
}

// trainingGraph Graph which trains exactly one network. Other networks it needs are defined on the same
// graph as frozen copies (their learnables get no gradients) and get synchronised after every step.
//
// trained - network optimized by solver
// frozen - copies of other networks
// realX, realY - batch inputs of domain A and domain B
// loss - objective of trained network
//
type trainingGraph struct {
	g         *gorgonia.ExprGraph
	trained   parameterized
	frozen    []parameterized
	realX     *gorgonia.Node
	realY     *gorgonia.Node
	loss      *gorgonia.Node
	lossValue gorgonia.Value
	vm        gorgonia.VM
	solver    gorgonia.Solver
}

// Trainer Four independent training graphs (one per network) with their own Adam solvers.
type Trainer struct {
	model     *CycleGAN
	batchSize int
	graphs    map[string]*trainingGraph
}

// NewTrainer Builds training graphs for batches of given size
func (m *CycleGAN) NewTrainer(batchSize int) (*Trainer, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("Batch size must be positive, but got %d", batchSize)
	}
	tr := &Trainer{
		model:     m,
		batchSize: batchSize,
		graphs:    make(map[string]*trainingGraph, len(NetworkNames)),
	}
	// G: A->B judged by D_Y; F: B->A judged by D_X
	builders := map[string]func(tg *trainingGraph) error{
		GeneratorGName: func(tg *trainingGraph) error {
			return m.generatorObjective(tg, GeneratorGName, GeneratorFName, DiscriminatorYName, tg.realX, tg.realY)
		},
		GeneratorFName: func(tg *trainingGraph) error {
			return m.generatorObjective(tg, GeneratorFName, GeneratorGName, DiscriminatorXName, tg.realY, tg.realX)
		},
		DiscriminatorXName: func(tg *trainingGraph) error {
			return m.discriminatorObjective(tg, DiscriminatorXName, GeneratorFName, tg.realX, tg.realY)
		},
		DiscriminatorYName: func(tg *trainingGraph) error {
			return m.discriminatorObjective(tg, DiscriminatorYName, GeneratorGName, tg.realY, tg.realX)
		},
	}
	for _, name := range NetworkNames {
		tg, err := m.newTrainingGraph(batchSize, builders[name])
		if err != nil {
			tr.Close()
			return nil, errors.Wrap(err, fmt.Sprintf("Can't build training graph of '%s'", name))
		}
		tr.graphs[name] = tg
	}
	return tr, nil
}

func (m *CycleGAN) newTrainingGraph(batchSize int, objective func(tg *trainingGraph) error) (*trainingGraph, error) {
	g := gorgonia.NewGraph()
	shape := []int{batchSize, ImageChannels, m.cfg.ImageHeight, m.cfg.ImageWidth}
	tg := &trainingGraph{
		g:     g,
		realX: gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(shape...), gorgonia.WithName("real_x")),
		realY: gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(shape...), gorgonia.WithName("real_y")),
	}
	if err := objective(tg); err != nil {
		return nil, err
	}
	gorgonia.Read(tg.loss, &tg.lossValue)
	if _, err := gorgonia.Grad(tg.loss, tg.trained.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "Can't define gradients")
	}
	tg.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(tg.trained.Learnables()...))
	tg.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(m.cfg.LearningRate), gorgonia.WithBeta1(m.cfg.Beta1))
	return tg, nil
}

// generatorObjective adversarial(D(gen(source)), 1) + λc*L1(target, gen(other(target))) + λc*λi*L1(target, gen(target))
func (m *CycleGAN) generatorObjective(tg *trainingGraph, genName, otherName, discName string, source, target *gorgonia.Node) error {
	gen, err := m.defineStored(tg.g, genName)
	if err != nil {
		return err
	}
	other, err := m.defineStored(tg.g, otherName)
	if err != nil {
		return err
	}
	disc, err := m.defineStored(tg.g, discName)
	if err != nil {
		return err
	}
	tg.trained = gen
	tg.frozen = []parameterized{other, disc}

	fake, err := gen.Apply(source)
	if err != nil {
		return errors.Wrap(err, "Can't translate source batch")
	}
	fakeLogits, err := disc.Apply(fake)
	if err != nil {
		return errors.Wrap(err, "Can't discriminate translated batch")
	}
	adversarial, err := AdversarialLoss(fakeLogits, 1.0, "adversarial")
	if err != nil {
		return err
	}

	back, err := other.Apply(target)
	if err != nil {
		return errors.Wrap(err, "Can't translate target batch back")
	}
	cycled, err := gen.Apply(back)
	if err != nil {
		return errors.Wrap(err, "Can't cycle target batch")
	}
	cycleLoss, err := L1Loss(target, cycled)
	if err != nil {
		return errors.Wrap(err, "Can't define cycle loss")
	}
	cycleLoss, err = gorgonia.Mul(gorgonia.NewScalar(tg.g, gorgonia.Float64, gorgonia.WithName("lambda_cycle"), gorgonia.WithValue(m.cfg.LambdaCycle)), cycleLoss)
	if err != nil {
		return errors.Wrap(err, "Can't weight cycle loss")
	}

	same, err := gen.Apply(target)
	if err != nil {
		return errors.Wrap(err, "Can't translate target batch by its own generator")
	}
	identityLoss, err := L1Loss(target, same)
	if err != nil {
		return errors.Wrap(err, "Can't define identity loss")
	}
	identityLoss, err = gorgonia.Mul(gorgonia.NewScalar(tg.g, gorgonia.Float64, gorgonia.WithName("lambda_identity"), gorgonia.WithValue(m.cfg.LambdaCycle*m.cfg.LambdaIdentity)), identityLoss)
	if err != nil {
		return errors.Wrap(err, "Can't weight identity loss")
	}

	total, err := gorgonia.Add(adversarial, cycleLoss)
	if err != nil {
		return errors.Wrap(err, "Can't do (adversarial+cycle)")
	}
	total, err = gorgonia.Add(total, identityLoss)
	if err != nil {
		return errors.Wrap(err, "Can't do (x+identity)")
	}
	gorgonia.WithName(genName + "_loss")(total)
	tg.loss = total
	return nil
}

// discriminatorObjective 0.5*(adversarial(D(real), 1) + adversarial(D(gen(source)), 0))
func (m *CycleGAN) discriminatorObjective(tg *trainingGraph, discName, genName string, real, source *gorgonia.Node) error {
	disc, err := m.defineStored(tg.g, discName)
	if err != nil {
		return err
	}
	gen, err := m.defineStored(tg.g, genName)
	if err != nil {
		return err
	}
	tg.trained = disc
	tg.frozen = []parameterized{gen}

	realLogits, err := disc.Apply(real)
	if err != nil {
		return errors.Wrap(err, "Can't discriminate real batch")
	}
	realLoss, err := AdversarialLoss(realLogits, 1.0, "real")
	if err != nil {
		return err
	}
	fake, err := gen.Apply(source)
	if err != nil {
		return errors.Wrap(err, "Can't translate source batch")
	}
	fakeLogits, err := disc.Apply(fake)
	if err != nil {
		return errors.Wrap(err, "Can't discriminate translated batch")
	}
	fakeLoss, err := AdversarialLoss(fakeLogits, 0.0, "fake")
	if err != nil {
		return err
	}
	total, err := gorgonia.Add(realLoss, fakeLoss)
	if err != nil {
		return errors.Wrap(err, "Can't do (real+fake)")
	}
	total, err = gorgonia.Mul(gorgonia.NewScalar(tg.g, gorgonia.Float64, gorgonia.WithName("half"), gorgonia.WithValue(0.5)), total)
	if err != nil {
		return errors.Wrap(err, "Can't do (0.5*x)")
	}
	gorgonia.WithName(discName + "_loss")(total)
	tg.loss = total
	return nil
}

// BatchSize Returns batch size graphs have been built for
func (tr *Trainer) BatchSize() int {
	return tr.batchSize
}

// Model Returns trained model
func (tr *Trainer) Model() *CycleGAN {
	return tr.model
}

// Step Single training step on paired batches (N, 3, H, W) of domain A (realX) and domain B (realY).
// All four gradients are computed from parameters as they were before the step, then all four solvers update their networks.
func (tr *Trainer) Step(realX, realY *tensor.Dense) (Losses, error) {
	cfg := tr.model.cfg
	expected := tensor.Shape{tr.batchSize, ImageChannels, cfg.ImageHeight, cfg.ImageWidth}
	if !realX.Shape().Eq(expected) {
		return Losses{}, fmt.Errorf("Batch of domain A must have shape %v, but got %v", expected, realX.Shape())
	}
	if !realY.Shape().Eq(expected) {
		return Losses{}, fmt.Errorf("Batch of domain B must have shape %v, but got %v", expected, realY.Shape())
	}

	defer func() {
		for _, tg := range tr.graphs {
			tg.vm.Reset()
		}
	}()

	values := make(map[string]float64, len(tr.graphs))
	for _, name := range NetworkNames {
		tg := tr.graphs[name]
		if err := gorgonia.Let(tg.realX, realX); err != nil {
			return Losses{}, errors.Wrap(err, "Can't init domain A input")
		}
		if err := gorgonia.Let(tg.realY, realY); err != nil {
			return Losses{}, errors.Wrap(err, "Can't init domain B input")
		}
		if err := tg.vm.RunAll(); err != nil {
			return Losses{}, errors.Wrap(err, fmt.Sprintf("Can't run VM of '%s'", name))
		}
		loss, err := scalarValue(tg.lossValue)
		if err != nil {
			return Losses{}, errors.Wrap(err, fmt.Sprintf("Can't read loss of '%s'", name))
		}
		values[name] = loss
	}

	// Model is changed only when every network has been updated
	updated := make(map[string]Parameters, len(tr.graphs))
	for _, name := range NetworkNames {
		tg := tr.graphs[name]
		if err := tg.solver.Step(gorgonia.NodesToValueGrads(tg.trained.Learnables())); err != nil {
			return Losses{}, tr.rollback(errors.Wrap(err, fmt.Sprintf("Can't update '%s'", name)))
		}
		params, err := tg.trained.Parameters()
		if err != nil {
			return Losses{}, tr.rollback(errors.Wrap(err, fmt.Sprintf("Can't read parameters of '%s'", name)))
		}
		updated[name] = params
	}
	for name, params := range updated {
		tr.model.params[name] = params
	}

	if err := tr.syncFrozen(); err != nil {
		return Losses{}, err
	}
	return Losses{
		G:  values[GeneratorGName],
		F:  values[GeneratorFName],
		DX: values[DiscriminatorXName],
		DY: values[DiscriminatorYName],
	}, nil
}

// rollback Restores trained networks of every graph to current model parameters and returns provided error
func (tr *Trainer) rollback(cause error) error {
	for _, name := range NetworkNames {
		if err := tr.graphs[name].trained.Assign(tr.model.params[name]); err != nil {
			return errors.Wrap(cause, fmt.Sprintf("Can't restore '%s' either: %s", name, err.Error()))
		}
	}
	return cause
}

// syncFrozen Copies current model parameters into frozen copies of every graph
func (tr *Trainer) syncFrozen() error {
	for _, name := range NetworkNames {
		for _, net := range tr.graphs[name].frozen {
			if err := net.Assign(tr.model.params[net.Name()]); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't synchronise '%s' in training graph of '%s'", net.Name(), name))
			}
		}
	}
	return nil
}

// Close Releases tape machines
func (tr *Trainer) Close() {
	for _, tg := range tr.graphs {
		if tg.vm != nil {
			tg.vm.Close()
		}
	}
}

func scalarValue(v gorgonia.Value) (float64, error) {
	switch x := v.(type) {
	case *gorgonia.F64:
		return float64(*x), nil
	case *tensor.Dense:
		if x.Shape().TotalSize() != 1 {
			return 0, fmt.Errorf("Value of shape %v is not a scalar", x.Shape())
		}
		switch data := x.Data().(type) {
		case float64:
			return data, nil
		case []float64:
			return data[0], nil
		}
		return 0, fmt.Errorf("Value has dtype %v, but float64 is expected", x.Dtype())
	case nil:
		return 0, fmt.Errorf("Value is not computed")
	default:
		return 0, fmt.Errorf("Value of type %T is not supported", v)
	}
}
