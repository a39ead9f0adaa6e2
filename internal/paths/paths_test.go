package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirsLiveUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")

	cache, err := CacheDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cache", "xprobe"), cache)
	assert.DirExists(t, cache)

	data, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "xprobe"), data)

	cfg, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "xprobe"), cfg)
}

func TestRealUser(t *testing.T) {
	t.Setenv("SUDO_UID", "")
	_, _, ok := RealUser()
	assert.False(t, ok)

	t.Setenv("SUDO_UID", "1001")
	t.Setenv("SUDO_GID", "1002")
	uid, gid, ok := RealUser()
	assert.True(t, ok)
	assert.Equal(t, 1001, uid)
	assert.Equal(t, 1002, gid)

	t.Setenv("SUDO_UID", "nobody")
	_, _, ok = RealUser()
	assert.False(t, ok)
}
