package config

import "strings"

// ServiceConfig holds configuration for the rendercheckd HTTP service.
type ServiceConfig struct {
	*Config

	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	ArtifactDir      string
}

// LoadService reads service configuration from environment variables. Run
// defaults are shared with Load; the log settings are the service's own.
func LoadService() (*ServiceConfig, error) {
	base, err := Load()
	if err != nil {
		return nil, err
	}
	base.LogLevel = strings.ToLower(getEnvOrDefault("RENDERCHECKD_LOG_LEVEL", "info"))
	base.LogFile = getEnvOrDefault("RENDERCHECKD_LOG_FILE", "logs/rendercheckd.log")

	cfg := &ServiceConfig{
		Config:           base,
		BindAddr:         getEnvOrDefault("RENDERCHECKD_BIND_ADDR", "127.0.0.1:8199"),
		PortCandidates:   getEnvListOrDefault("RENDERCHECKD_PORT_CANDIDATES", []string{"127.0.0.1:8200", "127.0.0.1:8201", "127.0.0.1:8202"}),
		PortAutoFallback: getEnvBoolOrDefault("RENDERCHECKD_PORT_AUTO_FALLBACK", true),
		ArtifactDir:      getEnvOrDefault("RENDERCHECKD_ARTIFACT_DIR", "./verification/runs"),
	}
	return cfg, nil
}
