package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a starter config.toml for the daemon.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `id = "lastping.local"
addr = ":9200"
admin_listen_addr = "127.0.0.1:9201"
cors_origins = ["http://localhost:3000"]
heartbeat = "30s"
default_timeout = "720h"

# Uncomment to persist the registry across restarts.
# snapshot_path = "/var/lib/lastpingd/registry.lp"
# snapshot_secret = "change-me"

claim_rate_per_sec = 0.2
claim_burst = 3

# Generate entries with: keygen -name alice
# [[tokens]]
# token = "..."
# principal = "lp1..."
`
