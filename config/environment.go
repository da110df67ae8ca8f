package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

var environmentAliases = map[string]string{
	"dev":   environmentDevelopment,
	"local": environmentDevelopment,
	"prod":  environmentProduction,
	"stage": environmentStaging,
	"stag":  environmentStaging,
}

// AppEnvironment returns the APP_ENV value after alias resolution. An unset
// APP_ENV means development.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// envConfigPaths maps each environment to its file next to DefaultPath,
// e.g. config/config.production.yml.
func envConfigPaths() map[string]string {
	dir := filepath.Dir(DefaultPath)
	paths := map[string]string{}
	for _, env := range []string{environmentDevelopment, environmentStaging, environmentProduction} {
		paths[env] = filepath.Join(dir, "config."+env+".yml")
	}
	return paths
}

// resolveEnvSpecificPath swaps the default path for the environment's own
// file when that file exists. Explicit paths are left alone.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}
	if path != defaultPath {
		return path
	}
	envPath, ok := envPaths[AppEnvironment()]
	if !ok {
		return path
	}
	if _, err := os.Stat(envPath); err != nil {
		return path
	}
	return envPath
}
