package config

import (
	"fmt"
	"os"
	"strings"

	"tradeflow/models"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

const (
	// EnvironmentDevelopment exposes the canonical development environment
	// identifier. It can be used by callers outside the config package when
	// environment specific behaviour is required.
	EnvironmentDevelopment = environmentDevelopment
	// EnvironmentProduction exposes the canonical production environment
	// identifier.
	EnvironmentProduction = environmentProduction
	// EnvironmentStaging exposes the canonical staging environment
	// identifier.
	EnvironmentStaging = environmentStaging
)

var environmentAliases = map[string]string{
	"prod":        environmentProduction,
	"producation": environmentProduction,
	"stag":        environmentStaging,
	"stagging":    environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// AppEnvironment exposes the current application environment as configured
// through the APP_ENV environment variable. The value is normalised using
// the same alias rules everywhere so callers can rely on a consistent
// identifier.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether the provided environment should behave
// like a production deployment. Production-like environments (production
// and staging) are typically stricter about configuration errors such as
// missing credentials.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}

const (
	envAPIKey    = "TRADEFLOW_API_KEY"
	envAPISecret = "TRADEFLOW_API_SECRET"
	envNetwork   = "TRADEFLOW_NETWORK"
)

// CredentialsFromEnv builds API credentials from the process environment.
// Credentials are never read from the config file and never persisted;
// the environment (or a .env file loaded at startup) is the only source.
// defaultNetwork applies when TRADEFLOW_NETWORK is unset.
func CredentialsFromEnv(defaultNetwork models.Network) (models.Credentials, error) {
	key := strings.TrimSpace(os.Getenv(envAPIKey))
	secret := strings.TrimSpace(os.Getenv(envAPISecret))
	if key == "" || secret == "" {
		return models.Credentials{}, fmt.Errorf("%s and %s must be set", envAPIKey, envAPISecret)
	}

	network := defaultNetwork
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(envNetwork))); v != "" {
		network = models.Network(v)
		if !network.Valid() {
			return models.Credentials{}, fmt.Errorf("%s must be %q or %q", envNetwork, models.NetworkLive, models.NetworkSandbox)
		}
	}

	return models.Credentials{
		APIKey:    key,
		APISecret: secret,
		Network:   network,
	}, nil
}
