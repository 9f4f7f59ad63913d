package config

const (
	defaultOutputSuffix = "-fixed"
	defaultLogLevel     = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Output: Output{
			Suffix: defaultOutputSuffix,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
