package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechflow/speechflow/config"
)

func TestDefaultGraphValidates(t *testing.T) {
	require.NoError(t, config.DefaultGraph().Validate())
}

func TestGraphValidateRejectsBadSampleRate(t *testing.T) {
	g := config.DefaultGraph().WithSampleRate(0)
	require.Error(t, g.Validate())
}

func TestGraphValidateRequiresRedisAddr(t *testing.T) {
	g := config.DefaultGraph().WithRedisCache("")
	require.Error(t, g.Validate())
}

func TestLoadYAMLBytesAppliesDefaultsAndOverrides(t *testing.T) {
	g, err := config.LoadYAMLBytes([]byte("audio_sample_rate: 16000\n"))
	require.NoError(t, err)
	assert.Equal(t, 16000, g.SampleRate)
	assert.Equal(t, 1, g.Channels) // default preserved
}

func intPtr(i int) *int { return &i }

func TestParamSchemaBindPositionalNamedDefault(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "test-node",
		Params: []config.Param{
			{Name: "rate", Type: config.ParamNumber, Pos: intPtr(0), Default: 48000.0},
			{Name: "label", Type: config.ParamString, Match: "^[a-z]+$"},
		},
	}

	bound, err := schema.Bind([]any{16000.0}, map[string]any{"label": "mic"})
	require.NoError(t, err)
	assert.Equal(t, 16000.0, bound["rate"])
	assert.Equal(t, "mic", bound["label"])
}

func TestParamSchemaBindUsesDefaultWhenUnset(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "test-node-2",
		Params: []config.Param{
			{Name: "rate", Type: config.ParamNumber, Default: 48000.0},
		},
	}
	bound, err := schema.Bind(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 48000.0, bound["rate"])
}

func TestParamSchemaRejectsBadPattern(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "test-node-3",
		Params: []config.Param{
			{Name: "label", Type: config.ParamString, Match: "^[a-z]+$"},
		},
	}
	_, err := schema.Bind(nil, map[string]any{"label": "NOT-LOWERCASE"})
	assert.Error(t, err)
}

func TestParamSchemaRejectsFailedPredicate(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "test-node-4",
		Params: []config.Param{
			{Name: "gain", Type: config.ParamNumber, Predicate: func(f float64) bool { return f >= 0 && f <= 1 }},
		},
	}
	_, err := schema.Bind(nil, map[string]any{"gain": 2.5})
	assert.Error(t, err)
}
