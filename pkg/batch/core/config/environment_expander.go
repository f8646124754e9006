package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands ${VAR} placeholders in raw configuration before it is parsed.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands placeholders from the process environment. ${VAR:-default}
// falls back to default when VAR is unset or empty; other unset variables expand to the empty
// string.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.Expand(string(input), e.resolve)), nil
}

func (e *OsEnvironmentExpander) resolve(placeholder string) string {
	name, fallback, hasDefault := strings.Cut(placeholder, ":-")
	value, ok := e.lookup(name)
	if hasDefault && (!ok || value == "") {
		return fallback
	}
	return value
}
