package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

const appName = "xprobe"

// HomeDir returns the real user's home directory, even when running under sudo,
// so staged configs and the database land in the same place regardless of
// privilege level.
func HomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		u, err := user.Lookup(sudoUser)
		if err == nil {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// RealUser returns the UID and GID of the invoking user when running under
// sudo. ok is false otherwise.
func RealUser() (uid, gid int, ok bool) {
	sudoUID := os.Getenv("SUDO_UID")
	if sudoUID == "" {
		return 0, 0, false
	}
	u, err := strconv.Atoi(sudoUID)
	if err != nil {
		return 0, 0, false
	}
	g, _ := strconv.Atoi(os.Getenv("SUDO_GID"))
	return u, g, true
}

// ChownToRealUser hands path back to the invoking user under sudo. No-op
// otherwise.
func ChownToRealUser(path string) {
	if uid, gid, ok := RealUser(); ok {
		os.Chown(path, uid, gid)
	}
}

// CacheDir returns ~/.cache/xprobe, creating it if needed. Staged probe
// configs, the core PID file and core logs live here.
func CacheDir() (string, error) {
	return ensureDir(".cache", appName)
}

// DataDir returns ~/.local/share/xprobe, creating it if needed.
func DataDir() (string, error) {
	return ensureDir(".local", "share", appName)
}

// ConfigDir returns ~/.config/xprobe, creating it if needed.
func ConfigDir() (string, error) {
	return ensureDir(".config", appName)
}

func ensureDir(elem ...string) (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(append([]string{home}, elem...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	ChownToRealUser(dir)
	return dir, nil
}
