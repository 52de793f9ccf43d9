package domain

import "strings"

// Environment selects which mock key set and base URL a request targets.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment never fails: anything that is not production is sandbox.
func ParseEnvironment(raw string) Environment {
	if strings.EqualFold(strings.TrimSpace(raw), string(EnvironmentProduction)) {
		return EnvironmentProduction
	}
	return EnvironmentSandbox
}

// KeyType is the API key type that is valid in this environment.
func (e Environment) KeyType() KeyType {
	if e == EnvironmentProduction {
		return KeyTypeProduction
	}
	return KeyTypeSandbox
}
