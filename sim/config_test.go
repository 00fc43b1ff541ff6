package sim

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

func float64Ptr(v float64) *float64 { return &v }

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{Horizon: 1}},
		{name: "self-consistent solver", cfg: Config{Horizon: 1, Solver: SolverSelfConsistent}},
		{name: "single-bounce solver", cfg: Config{Horizon: 1, Solver: SolverSingleBounce}},
		{name: "passive at lower bound", cfg: Config{Horizon: 1, PassiveReflection: float64Ptr(0)}},
		{name: "passive at upper bound", cfg: Config{Horizon: 1, PassiveReflection: float64Ptr(1)}},
		{name: "unknown solver", cfg: Config{Horizon: 1, Solver: "ray-traced"}, wantErr: "unknown solver"},
		{name: "zero horizon", cfg: Config{}, wantErr: "horizon must be positive"},
		{name: "negative horizon", cfg: Config{Horizon: -5}, wantErr: "horizon must be positive"},
		{name: "NaN horizon", cfg: Config{Horizon: math.NaN()}, wantErr: "horizon must be positive"},
		{name: "negative feedback interval", cfg: Config{Horizon: 1, FeedbackInterval: -0.5}, wantErr: "feedback_interval"},
		{name: "negative noise", cfg: Config{Horizon: 1, NoiseStd: -1}, wantErr: "noise_std"},
		{name: "passive below range", cfg: Config{Horizon: 1, PassiveReflection: float64Ptr(-0.1)}, wantErr: "passive_reflection"},
		{name: "passive above range", cfg: Config{Horizon: 1, PassiveReflection: float64Ptr(1.5)}, wantErr: "passive_reflection"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeTempYAML(t, `
horizon: 30
feedback_interval: 0.1
seed: 42
noise_std: 0.001
passive_reflection: 0.05
power_threshold_dbm: -90
solver: single-bounce
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30.0, cfg.Horizon)
	assert.Equal(t, 0.1, cfg.FeedbackInterval)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 0.001, cfg.NoiseStd)
	require.NotNil(t, cfg.PassiveReflection)
	assert.Equal(t, 0.05, *cfg.PassiveReflection)
	require.NotNil(t, cfg.PowerThresholdDBm)
	assert.Equal(t, -90.0, *cfg.PowerThresholdDBm)
	assert.Equal(t, SolverSingleBounce, cfg.Solver)
}

func TestLoadConfig_OmittedFieldsStayUnset(t *testing.T) {
	path := writeTempYAML(t, "horizon: 5\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Unset pointers mean "defer to defaults", distinct from explicit 0.
	assert.Nil(t, cfg.PassiveReflection)
	assert.Nil(t, cfg.PowerThresholdDBm)
	assert.Equal(t, 0.0, cfg.FeedbackInterval)
	assert.Equal(t, "", cfg.Solver)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading engine config")
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeTempYAML(t, "horizon: [not a number\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing engine config")
}

func TestConfig_PhysicsMapping(t *testing.T) {
	// Unset knobs fall back to package defaults.
	cfg := Config{Horizon: 1}
	pc := cfg.physicsConfig()
	assert.Equal(t, physics.DefaultPassiveReflection, pc.PassiveReflection)
	assert.Equal(t, 0.0, pc.PowerThresholdDBm, "engine substitutes its own default")
	assert.False(t, pc.SingleBounce)

	// Explicit values pass through, including an explicit zero.
	cfg = Config{
		Horizon:           1,
		NoiseStd:          0.002,
		PassiveReflection: float64Ptr(0),
		PowerThresholdDBm: float64Ptr(-80),
		Solver:            SolverSingleBounce,
	}
	pc = cfg.physicsConfig()
	assert.Equal(t, 0.002, pc.NoiseStd)
	assert.Equal(t, 0.0, pc.PassiveReflection)
	assert.Equal(t, -80.0, pc.PowerThresholdDBm)
	assert.True(t, pc.SingleBounce)
}
