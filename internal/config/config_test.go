package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "nbstats.gob", cfg.Model.Name)
	assert.True(t, cfg.Model.LoadOnStart)
	assert.True(t, cfg.Model.SaveOnShutdown)
	assert.False(t, cfg.Model.LegacySampleCounting)
	assert.Equal(t, "c_svc", cfg.Model.SVMType)
	assert.Equal(t, "english", cfg.Tokenizer.Language)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Archive.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nbstats.yaml")
	content := `
server:
  port: 9100
model:
  dir: ` + dir + `
  name: spam.gob
  legacy_sample_counting: true
tokenizer:
  stem: false
  min_length: 3
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("NBSTATS_SERVER__PORT", "9200")
	t.Setenv("NBSTATS_MODEL__SVM_TYPE", "nu_svr")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port, "env should override file")
	assert.Equal(t, dir, cfg.Model.Dir)
	assert.Equal(t, filepath.Join(dir, "spam.gob"), cfg.Model.Path())
	assert.True(t, cfg.Model.LegacySampleCounting)
	assert.Equal(t, "nu_svr", cfg.Model.SVMType)
	assert.False(t, cfg.Tokenizer.Stem)
	assert.Equal(t, 3, cfg.Tokenizer.MinLength)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NBSTATS_SERVER__PORT", "70000")

	_, err := Load("")
	require.ErrorIs(t, err, errInvalidPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: errInvalidPort},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: errInvalidLogFormat},
		{name: "language", mutate: func(c *Config) { c.Tokenizer.Language = "latin" }, want: errInvalidLanguage},
		{name: "min length", mutate: func(c *Config) { c.Tokenizer.MinLength = -1 }, want: errInvalidMinLength},
		{name: "relative dir", mutate: func(c *Config) { c.Model.Dir = "models" }, want: errRelativeModelDir},
		{name: "empty name", mutate: func(c *Config) { c.Model.Name = "" }, want: errEmptyModelName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}

	cfg := Default()
	cfg.Tokenizer.Language = "latin"
	cfg.Tokenizer.Stem = false
	assert.NoError(t, cfg.Validate(), "language is irrelevant without stemming")
}

func TestInvalidLanguageListsSupportedOnes(t *testing.T) {
	cfg := Default()
	cfg.Tokenizer.Language = "latin"

	err := cfg.Validate()
	require.ErrorIs(t, err, errInvalidLanguage)
	assert.Contains(t, err.Error(), `"latin"`)
	assert.Contains(t, err.Error(), "english")
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "model.legacy_sample_counting", envTransformFunc("NBSTATS_MODEL__LEGACY_SAMPLE_COUNTING"))
	assert.Equal(t, "server.port", envTransformFunc("NBSTATS_SERVER__PORT"))
	assert.Equal(t, "", envTransformFunc(ConfigPathEnvVar))
}
