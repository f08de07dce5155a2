package cli

// Config holds the CLI settings after flags and environment are applied
type Config struct {
	ConfigFile  string
	ProjectRoot string
	Verbosity   string
	Version     string
	// Env is the mode selector, normally taken from NODE_ENV
	Env string
	// Port overrides the dev server port when non-zero
	Port int
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Verbosity:   "info",
	}
}
