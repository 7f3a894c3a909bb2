package cyclegan_go

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ImageChannels Number of colour channels of every image tensor
const ImageChannels = 3

// Config Settings of architecture, training and file locations.
type Config struct {
	ImageHeight int `yaml:"image_height"`
	ImageWidth  int `yaml:"image_width"`

	Filters               int `yaml:"filters"`
	NumDownsamplingBlocks int `yaml:"num_downsampling_blocks"`
	NumResidualBlocks     int `yaml:"num_residual_blocks"`
	NumUpsamplingBlocks   int `yaml:"num_upsampling_blocks"`
	DiscriminatorFilters  int `yaml:"discriminator_filters"`

	LambdaCycle    float64 `yaml:"lambda_cycle"`
	LambdaIdentity float64 `yaml:"lambda_identity"`
	LearningRate   float64 `yaml:"learning_rate"`
	Beta1          float64 `yaml:"beta1"`
	Epochs         int     `yaml:"epochs"`

	BatchSize     int   `yaml:"batch_size"`
	ShuffleBuffer int   `yaml:"shuffle_buffer"`
	NumSamples    int   `yaml:"num_samples"`
	Seed          int64 `yaml:"seed"`

	InputPathA  string `yaml:"input_path_a"`
	InputPathB  string `yaml:"input_path_b"`
	ModelPath   string `yaml:"model_path"`
	ResultsPath string `yaml:"results_path"`
}

// DefaultConfig Returns settings of the reference CycleGAN (256x256, 2/9/2 blocks, 64 filters)
func DefaultConfig() Config {
	return Config{
		ImageHeight:           256,
		ImageWidth:            256,
		Filters:               64,
		NumDownsamplingBlocks: 2,
		NumResidualBlocks:     9,
		NumUpsamplingBlocks:   2,
		DiscriminatorFilters:  64,
		LambdaCycle:           10.0,
		LambdaIdentity:        0.5,
		LearningRate:          2e-4,
		Beta1:                 0.5,
		Epochs:                1,
		BatchSize:             4,
		ShuffleBuffer:         256,
		NumSamples:            4,
		Seed:                  1337,
		InputPathA:            "data/trainA",
		InputPathB:            "data/trainB",
		ModelPath:             "models/cyclegan.gob",
		ResultsPath:           "results",
	}
}

// LoadConfig Reads YAML file on top of DefaultConfig and validates the result
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "Can't read configuration file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, fmt.Sprintf("Can't parse configuration file '%s'", path))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, fmt.Sprintf("Invalid configuration in '%s'", path))
	}
	return cfg, nil
}

// Validate Checks that generator keeps resolution and discriminator produces non-empty patch map
func (cfg Config) Validate() error {
	if cfg.ImageHeight <= 0 || cfg.ImageWidth <= 0 {
		return fmt.Errorf("Image size must be positive, but got %dx%d", cfg.ImageHeight, cfg.ImageWidth)
	}
	if cfg.Filters <= 0 || cfg.DiscriminatorFilters <= 0 {
		return fmt.Errorf("Filters must be positive, but got generator=%d discriminator=%d", cfg.Filters, cfg.DiscriminatorFilters)
	}
	if cfg.NumDownsamplingBlocks < 0 || cfg.NumResidualBlocks < 0 || cfg.NumUpsamplingBlocks < 0 {
		return fmt.Errorf("Block counts must not be negative")
	}
	if cfg.NumDownsamplingBlocks != cfg.NumUpsamplingBlocks {
		return fmt.Errorf("Generator would change resolution: %d downsampling blocks vs %d upsampling blocks", cfg.NumDownsamplingBlocks, cfg.NumUpsamplingBlocks)
	}
	scale := 1 << uint(cfg.NumDownsamplingBlocks)
	if cfg.ImageHeight%scale != 0 || cfg.ImageWidth%scale != 0 {
		return fmt.Errorf("Image size %dx%d must be divisible by %d", cfg.ImageHeight, cfg.ImageWidth, scale)
	}
	if cfg.ImageHeight/scale < 2 || cfg.ImageWidth/scale < 2 {
		return fmt.Errorf("Image size %dx%d is too small for %d downsampling blocks", cfg.ImageHeight, cfg.ImageWidth, cfg.NumDownsamplingBlocks)
	}
	if cfg.ImageHeight <= GeneratorStemPadding || cfg.ImageWidth <= GeneratorStemPadding {
		return fmt.Errorf("Image size %dx%d is too small for reflection padding %d of generator stem", cfg.ImageHeight, cfg.ImageWidth, GeneratorStemPadding)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("Batch size must be positive, but got %d", cfg.BatchSize)
	}
	if cfg.NumSamples <= 0 {
		return fmt.Errorf("Number of samples must be positive, but got %d", cfg.NumSamples)
	}
	return nil
}

// Topology Architecture-defining part of configuration. Weights are only compatible with identical topology.
type Topology struct {
	ImageHeight           int
	ImageWidth            int
	Channels              int
	Filters               int
	NumDownsamplingBlocks int
	NumResidualBlocks     int
	NumUpsamplingBlocks   int
	DiscriminatorFilters  int
}

// Topology Extracts architecture-defining settings
func (cfg Config) Topology() Topology {
	return Topology{
		ImageHeight:           cfg.ImageHeight,
		ImageWidth:            cfg.ImageWidth,
		Channels:              ImageChannels,
		Filters:               cfg.Filters,
		NumDownsamplingBlocks: cfg.NumDownsamplingBlocks,
		NumResidualBlocks:     cfg.NumResidualBlocks,
		NumUpsamplingBlocks:   cfg.NumUpsamplingBlocks,
		DiscriminatorFilters:  cfg.DiscriminatorFilters,
	}
}

func (t Topology) String() string {
	return fmt.Sprintf("%dx%dx%d, filters=%d, blocks=%d/%d/%d, discriminator filters=%d",
		t.ImageHeight, t.ImageWidth, t.Channels, t.Filters,
		t.NumDownsamplingBlocks, t.NumResidualBlocks, t.NumUpsamplingBlocks, t.DiscriminatorFilters)
}
