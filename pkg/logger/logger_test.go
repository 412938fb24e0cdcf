package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]string

func (f fakeEnv) Getenv(key string) string { return f[key] }

func TestUnstructuredLogsWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"unset defaults to unstructured", "", true},
		{"explicitly true", "true", true},
		{"explicitly false", "false", false},
		{"unparsable value defaults to unstructured", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := fakeEnv{"MCPCORE_UNSTRUCTURED_LOGS": tt.envValue}
			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(env))
		})
	}
}

func TestInitializeWithEnv(t *testing.T) { //nolint:paralleltest // mutates singleton
	prev := singleton.Load()
	t.Cleanup(func() { singleton.Store(prev) })

	InitializeWithEnv(fakeEnv{"MCPCORE_UNSTRUCTURED_LOGS": "false"})
	require.NotNil(t, Get())
}

func TestLevelFunctionsDoNotPanic(t *testing.T) { //nolint:paralleltest // mutates singleton
	prev := singleton.Load()
	t.Cleanup(func() { singleton.Store(prev) })
	InitializeWithEnv(fakeEnv{})

	assert.NotPanics(t, func() {
		Debug("debug msg")
		Debugf("debug %s", "formatted")
		Debugw("debug kv", "key", "val")
		Info("info msg")
		Infof("info %s", "formatted")
		Infow("info kv", "key", "val")
		Warn("warn msg")
		Warnf("warn %s", "formatted")
		Warnw("warn kv", "key", "val")
		Error("error msg")
		Errorf("error %s", "formatted")
		Errorw("error kv", "key", "val")
	})
}

func TestGet(t *testing.T) { //nolint:paralleltest // mutates singleton
	prev := singleton.Load()
	t.Cleanup(func() { singleton.Store(prev) })
	InitializeWithEnv(fakeEnv{})

	require.NotNil(t, Get())
}
