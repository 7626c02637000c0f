package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.msgsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".msgsync")
}

// Dir returns the site-specific directory.
func Dir(site string) string {
	return filepath.Join(BaseDir(), "sites", site)
}

// SocketPath returns the UDS socket path for a site daemon.
func SocketPath(site string) string {
	return filepath.Join(Dir(site), "daemon.sock")
}

// LockPath returns the lock file path for a site.
func LockPath(site string) string {
	return filepath.Join(Dir(site), "LOCK")
}

// QueueDBPath returns the offline queue database path.
func QueueDBPath(site string) string {
	return filepath.Join(Dir(site), "queue.db")
}

// LogDir returns the log directory for a site.
func LogDir(site string) string {
	return filepath.Join(Dir(site), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(site string) string {
	return filepath.Join(LogDir(site), "msgsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the site directory tree with proper permissions.
func EnsureDir(site string) error {
	for _, d := range []string{Dir(site), LogDir(site)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
