package updater

import "os"

// EnvironmentVariable selects the ambient build environment. It is read from
// the process environment, not from a CLI argument, so packaged builds and
// test harnesses control it the same way.
const EnvironmentVariable = "FEVER_ENV"

// Environment is the ambient build environment the agent runs in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// EnvironmentFromProcess reads the build environment from the process
// environment. An unset or unknown value is neither development nor
// production: update checks run, but blocking error dialogs stay suppressed.
func EnvironmentFromProcess() Environment {
	return Environment(os.Getenv(EnvironmentVariable))
}

func (e Environment) IsDevelopment() bool {
	return e == EnvDevelopment
}

func (e Environment) IsProduction() bool {
	return e == EnvProduction
}
