package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
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

const daemonTemplate = `id = "adbtpd"
addr = ":5037"
http_addr = "127.0.0.1:9137"
variant = "blocking"

# per-message budgets; "undefined" defers to transport_timeout
read_timeout = "infinite"
write_timeout = "5s"
transport_timeout = "10s"

# mutual requires ca_file to verify client certificates
[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""

[log]
level = "info"
file = ""
no_color = false
`

const clientTemplate = `addr = "127.0.0.1:5037"
variant = "blocking"
timeout = "3s"
transport_timeout = "10s"

[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""

[log]
level = "warn"
`
