package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useFileBackend points the package at an isolated file-backed keyring
// for the duration of a test.
func useFileBackend(t *testing.T) {
	t.Helper()
	saved := openConfig
	openConfig.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	openConfig.FileDir = t.TempDir()
	t.Cleanup(func() { openConfig = saved })
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	useFileBackend(t)

	require.NoError(t, Set(PasswordKey, "app-password"))

	got, err := Get(PasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "app-password", got)

	require.NoError(t, Delete(PasswordKey))

	_, err = Get(PasswordKey)
	require.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	useFileBackend(t)

	_, err := Get("never-stored")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never-stored")
}

func TestSetOverwritesExistingValue(t *testing.T) {
	useFileBackend(t)

	require.NoError(t, Set(PasswordKey, "first"))
	require.NoError(t, Set(PasswordKey, "second"))

	got, err := Get(PasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}
