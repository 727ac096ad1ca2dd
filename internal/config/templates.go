package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter config in format "toml" or "yaml".
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml", "":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `[client]
# user_id = "" # generated at startup when empty
resume = true
resume_timeout = 60

[[nodes]]
name = "local"
host = "localhost"
port = 2333
secure = false
auth = "youshallnotpass"
driver = "lavalink/v3"

[store]
kind = "sqlite"
path = "edgelink.db"

[admin]
addr = ":2334"
cors_origins = ["http://localhost:3000"]
# token = "" # bearer token required on /nodes routes when set

[reconnect]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "30s"
jitter = true
max_attempts = 0
`

const yamlTemplate = `client:
  resume: true
  resume_timeout: 60

nodes:
  - name: local
    host: localhost
    port: 2333
    secure: false
    auth: youshallnotpass
    driver: lavalink/v3

store:
  kind: sqlite
  path: edgelink.db

admin:
  addr: ":2334"
  cors_origins:
    - http://localhost:3000
  # token: "" # bearer token required on /nodes routes when set

reconnect:
  initial_delay: 250ms
  multiplier: 2.0
  max_delay: 30s
  jitter: true
  max_attempts: 0
`
