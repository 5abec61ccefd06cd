package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalsStrings(t *testing.T) {
	var cfg struct {
		Lease Duration `yaml:"lease"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("lease: 15m"), &cfg))
	assert.Equal(t, 15*time.Minute, cfg.Lease.D())
}

func TestDuration_UnmarshalsNanoseconds(t *testing.T) {
	var cfg struct {
		Window Duration `yaml:"window"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("window: 1000000"), &cfg))
	assert.Equal(t, time.Millisecond, cfg.Window.D())
}

func TestDuration_RejectsGarbage(t *testing.T) {
	var cfg struct {
		Lease Duration `yaml:"lease"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("lease: soon"), &cfg))
}

func TestDuration_MarshalsAsString(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Lease Duration `yaml:"lease"`
	}{Lease: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "1m30s")
}
