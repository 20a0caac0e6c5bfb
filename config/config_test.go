package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okieraised/go-rpn-proposal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPNParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultTrainRPNParams.Validate())
	assert.NoError(t, DefaultTestRPNParams.Validate())
	assert.NoError(t, NewRPNParams(0, 1, 0, 0, 0).Validate())

	cases := []RPNParams{
		NewRPNParams(10, 0, 0.7, 0, 0.7),
		NewRPNParams(10, -3, 0.7, 0, 0.7),
		NewRPNParams(10, 5, -0.1, 0, 0.7),
		NewRPNParams(10, 5, 0.7, -1, 0.7),
		NewRPNParams(10, 5, 0.7, 0, -0.5),
	}
	for _, c := range cases {
		assert.ErrorIs(t, c.Validate(), processing.ErrInvalidConfig, "%+v", c)
	}
}

func TestConfig_Resolve(t *testing.T) {
	params, err := DefaultConfig.Resolve(ModeTest)
	require.NoError(t, err)
	assert.Equal(t, DefaultTestRPNParams, params)

	params, err = DefaultConfig.Resolve(ModeTrain)
	require.NoError(t, err)
	assert.Equal(t, 2000, params.PostNMSTopN)

	_, err = DefaultConfig.Resolve("VAL")
	assert.ErrorIs(t, err, processing.ErrInvalidConfig)

	var nilCfg *Config
	_, err = nilCfg.Resolve(ModeTest)
	assert.ErrorIs(t, err, processing.ErrInvalidConfig)

	bad := NewConfig(map[string]RPNParams{ModeTest: NewRPNParams(10, 0, 0.7, 0, 0.7)})
	_, err = bad.Resolve(ModeTest)
	assert.ErrorIs(t, err, processing.ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	doc := `
modes:
  TRAIN:
    pre_nms_top_n: 12000
    post_nms_top_n: 2000
    nms_thresh: 0.7
    min_size: 8
  TEST:
    post_nms_top_n: 100
`
	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)

	train, err := cfg.Resolve(ModeTrain)
	require.NoError(t, err)
	assert.Equal(t, NewRPNParams(12000, 2000, 0.7, 8, processing.DefaultIgnoreThresh), train)

	test, err := cfg.Resolve(ModeTest)
	require.NoError(t, err)
	assert.Equal(t, 100, test.PostNMSTopN)
	assert.Equal(t, DefaultTestRPNParams.PreNMSTopN, test.PreNMSTopN)
	assert.Equal(t, DefaultTestRPNParams.NMSThresh, test.NMSThresh)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("modes:\n  TEST:\n    post_nms_top_n: 0\n"))
	assert.ErrorIs(t, err, processing.ErrInvalidConfig)

	_, err = LoadConfig(strings.NewReader("modes: [1, 2"))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modes:\n  TEST:\n    nms_thresh: 0.5\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	params, err := cfg.Resolve(ModeTest)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), params.NMSThresh)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
