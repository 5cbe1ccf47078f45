package jvmconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	v := New(t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Classpath)
	assert.Equal(t, uint64(defaultHeapBytes), cfg.HeapBytes)
	assert.False(t, cfg.GCVerbose)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("TINYJVM_CLASSPATH", "/opt/classes")
	t.Setenv("TINYJVM_GC_VERBOSE", "true")

	v := New(t.TempDir())
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/opt/classes", cfg.Classpath)
	assert.True(t, cfg.GCVerbose)
}
