package function

import (
	"os"
	"os/exec"
	"strconv"
	"time"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
)

// CheckDependencies verifies every declared external binary resolves on
// PATH. The first missing dependency aborts with a DEPENDENCY_ERROR.
func CheckDependencies(deps []string) error {
	for _, dep := range deps {
		if _, err := exec.LookPath(dep); err != nil {
			return qserrors.New(qserrors.CodeDependency,
				"dependency "+strconv.Quote(dep)+" is required but not installed", err)
		}
	}
	return nil
}

// CheckEnvVars verifies every declared environment variable is present
// and coercible to its declared kind.
func CheckEnvVars(vars map[string]EnvKind) error {
	for name, kind := range vars {
		value, ok := os.LookupEnv(name)
		if !ok {
			return qserrors.Newf(qserrors.CodeEnvironment,
				"environment variable %q is not set", name)
		}
		if err := coerceEnv(value, kind); err != nil {
			return qserrors.New(qserrors.CodeEnvironment,
				"environment variable "+strconv.Quote(name)+" cannot be parsed as "+string(kind), err)
		}
	}
	return nil
}

func coerceEnv(value string, kind EnvKind) error {
	var err error
	switch kind {
	case EnvInt:
		_, err = strconv.ParseInt(value, 10, 64)
	case EnvFloat:
		_, err = strconv.ParseFloat(value, 64)
	case EnvBool:
		_, err = strconv.ParseBool(value)
	case EnvDuration:
		_, err = time.ParseDuration(value)
	case EnvString, "":
		// Any value parses.
	default:
		return qserrors.Newf(qserrors.CodeContract, "unknown env kind %q", kind)
	}
	return err
}
