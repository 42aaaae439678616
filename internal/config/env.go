package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// ReadEnv returns the variables from the dotenv file at path overlaid with
// environ. Non-empty values from environ win; the process environment is
// not modified. A missing dotenv file is ignored.
func ReadEnv(path string, environ []string) (map[string]string, error) {
	env := map[string]string{}
	if path != "" {
		fileEnv, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file %q: %w", path, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range environ {
		if idx := strings.Index(kv, "="); idx > 0 && idx < len(kv)-1 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	return env, nil
}
