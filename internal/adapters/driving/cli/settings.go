package cli

import "github.com/tenderline-labs/tenderline/internal/core/ports/driven"

// Engine defaults when neither a flag nor config.toml says otherwise.
const (
	defaultListen   = "127.0.0.1:8714"
	defaultMaxPolls = 4
)

// engineSettings is the resolved serve configuration.
type engineSettings struct {
	listen    string
	maxPolls  int
	catalogue string
}

// resolveEngineSettings layers serve's settings: a flag wins over the
// config store, which wins over the built-in default. Zero flag values
// mean "not set".
func resolveEngineSettings(store driven.ConfigStore, flagListen string, flagMaxPolls int, flagCatalogue string) engineSettings {
	settings := engineSettings{
		listen:    flagListen,
		maxPolls:  flagMaxPolls,
		catalogue: flagCatalogue,
	}
	if settings.listen == "" {
		settings.listen = store.GetString("server.listen")
	}
	if settings.listen == "" {
		settings.listen = defaultListen
	}
	if settings.maxPolls == 0 {
		settings.maxPolls = store.GetInt("ingest.max_concurrent_polls")
	}
	if settings.maxPolls == 0 {
		settings.maxPolls = defaultMaxPolls
	}
	if settings.catalogue == "" {
		settings.catalogue = store.GetString("ingest.catalogue")
	}
	return settings
}
