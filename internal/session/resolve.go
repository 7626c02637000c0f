package session

import "github.com/matheus3301/msgsync/internal/config"

const DefaultSiteName = "main"

// Resolve determines the active site using precedence:
// 1. flagOverride (--site flag)
// 2. config.toml default_site
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSite != "" {
		return cfg.DefaultSite
	}
	return DefaultSiteName
}
