package cyclegan_go

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CheckpointVersion Version of checkpoint layout written by SaveWeights
const CheckpointVersion = 1

// ParameterBlob Raw value of a single parameter
type ParameterBlob struct {
	Shape []int
	Data  []float64
}

// Checkpoint Persisted weights of all four networks together with architecture they belong to
//
// RunID - identifier of the process which has written checkpoint
// Networks - network name => parameter name => value
//
type Checkpoint struct {
	Version  int
	RunID    string
	Topology Topology
	Networks map[string]map[string]ParameterBlob
}

// NewCheckpoint Snapshot of current model parameters
func NewCheckpoint(m *CycleGAN) *Checkpoint {
	checkpoint := &Checkpoint{
		Version:  CheckpointVersion,
		RunID:    uuid.New().String(),
		Topology: m.cfg.Topology(),
		Networks: make(map[string]map[string]ParameterBlob, len(m.params)),
	}
	for netName, params := range m.params {
		blobs := make(map[string]ParameterBlob, len(params))
		for name, value := range params {
			blobs[name] = ParameterBlob{
				Shape: value.Shape().Clone(),
				Data:  float64s(value),
			}
		}
		checkpoint.Networks[netName] = blobs
	}
	return checkpoint
}

// SaveWeights Writes parameters of all networks into file (parent directories are created)
func SaveWeights(m *CycleGAN, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't create directory for '%s'", path))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't create weights file '%s'", path))
	}
	if err := gob.NewEncoder(f).Encode(NewCheckpoint(m)); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't encode weights into '%s'", path))
	}
	return f.Close()
}

// ReadCheckpoint Decodes checkpoint file without applying it
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open weights file '%s'", path))
	}
	defer f.Close()
	cp := &Checkpoint{}
	if err := gob.NewDecoder(f).Decode(cp); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode weights file '%s'", path))
	}
	return cp, nil
}

// LoadWeights Reads weights file and replaces parameters of every network.
// Nothing is changed unless version, topology and every parameter of every network match.
func LoadWeights(m *CycleGAN, path string) error {
	cp, err := ReadCheckpoint(path)
	if err != nil {
		return err
	}
	if err := cp.Apply(m); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Weights file '%s' does not match the model", path))
	}
	return nil
}

// Apply Validates checkpoint against model and replaces model parameters
func (cp *Checkpoint) Apply(m *CycleGAN) error {
	if cp.Version != CheckpointVersion {
		return fmt.Errorf("Checkpoint version %d is not supported (expected %d)", cp.Version, CheckpointVersion)
	}
	if expected := m.cfg.Topology(); cp.Topology != expected {
		return fmt.Errorf("Checkpoint topology [%s] differs from configured topology [%s]", cp.Topology, expected)
	}
	if len(cp.Networks) != len(NetworkNames) {
		return fmt.Errorf("Checkpoint holds %d networks, but model has %d", len(cp.Networks), len(NetworkNames))
	}
	staged := make(map[string]Parameters, len(NetworkNames))
	for _, netName := range NetworkNames {
		blobs, ok := cp.Networks[netName]
		if !ok {
			return fmt.Errorf("Checkpoint has no weights for '%s'", netName)
		}
		params := make(Parameters, len(blobs))
		for name, blob := range blobs {
			shape := tensor.Shape(blob.Shape)
			if shape.TotalSize() != len(blob.Data) {
				return fmt.Errorf("Parameter '%s' has shape %v, but holds %d values", name, shape, len(blob.Data))
			}
			data := make([]float64, len(blob.Data))
			copy(data, blob.Data)
			params[name] = tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(data))
		}
		// Validation only: parameters are applied after every network has passed
		if _, err := m.define(gorgonia.NewGraph(), netName, params); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Weights of '%s' do not match architecture", netName))
		}
		staged[netName] = params
	}
	for netName, params := range staged {
		m.params[netName] = params
	}
	return nil
}
