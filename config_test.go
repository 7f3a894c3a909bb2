package cyclegan_go

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.ImageHeight)
	assert.Equal(t, 64, cfg.Filters)
	assert.Equal(t, 2, cfg.NumDownsamplingBlocks)
	assert.Equal(t, 9, cfg.NumResidualBlocks)
	assert.Equal(t, 2, cfg.NumUpsamplingBlocks)
	assert.Equal(t, 10.0, cfg.LambdaCycle)
	assert.Equal(t, 0.5, cfg.LambdaIdentity)
	assert.Equal(t, 4, cfg.NumSamples)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
image_height: 128
image_width: 128
num_residual_blocks: 6
input_path_a: /data/horses
model_path: /models/horse2zebra.gob
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.ImageHeight)
	assert.Equal(t, 128, cfg.ImageWidth)
	assert.Equal(t, 6, cfg.NumResidualBlocks)
	assert.Equal(t, "/data/horses", cfg.InputPathA)
	assert.Equal(t, "/models/horse2zebra.gob", cfg.ModelPath)
	// Untouched settings keep defaults
	assert.Equal(t, 64, cfg.Filters)
	assert.Equal(t, "data/trainB", cfg.InputPathB)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("image_height: 102\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("image_height: [1, 2"), 0644))
	_, err = LoadConfig(broken)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []func(cfg *Config){
		func(cfg *Config) { cfg.ImageHeight = 0 },
		func(cfg *Config) { cfg.Filters = -1 },
		func(cfg *Config) { cfg.NumUpsamplingBlocks = 3 },
		func(cfg *Config) { cfg.ImageWidth = 254 },
		func(cfg *Config) { cfg.ImageHeight, cfg.ImageWidth = 4, 4 },
		func(cfg *Config) { cfg.NumDownsamplingBlocks, cfg.NumUpsamplingBlocks = 0, 0; cfg.ImageHeight, cfg.ImageWidth = 3, 3 },
		func(cfg *Config) { cfg.BatchSize = 0 },
		func(cfg *Config) { cfg.NumSamples = 0 },
	}
	for i, modify := range cases {
		cfg := DefaultConfig()
		modify(&cfg)
		assert.Error(t, cfg.Validate(), "case #%d", i)
	}
}

func TestTopology(t *testing.T) {
	cfg := DefaultConfig()
	topology := cfg.Topology()
	assert.Equal(t, ImageChannels, topology.Channels)
	assert.Equal(t, "256x256x3, filters=64, blocks=2/9/2, discriminator filters=64", topology.String())

	cfg.Epochs = 100
	cfg.ModelPath = "elsewhere.gob"
	assert.Equal(t, topology, cfg.Topology())
	cfg.Filters = 32
	assert.NotEqual(t, topology, cfg.Topology())
}
