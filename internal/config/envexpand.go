package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content before
// parsing, the way a deployment substitutes secrets (DB password, NATS
// credentials) into a checked-in config file without baking them into
// the repo. Missing variables expand to empty string; validation
// catches required fields left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
