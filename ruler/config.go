package ruler

// Config controls a Machine's compile-time behavior, mirroring the
// project's Config/DefaultConfig/Validate pattern used elsewhere for
// engine configuration.
type Config struct {
	// MaxComplexity bounds the wildcard-induced NFA breadth a rule set
	// may reach (see package complexity). AddRule rejects a rule that
	// would push the machine's complexity past this bound.
	// Default: 100000
	MaxComplexity int

	// MaxNameStates bounds the number of name-machine states a single
	// AddRule call may allocate, guarding against pathologically large
	// single rules ($or expansions especially).
	// Default: 100000
	MaxNameStates int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxComplexity: 100_000,
		MaxNameStates: 100_000,
	}
}

// Validate checks that every Config field is within its documented range.
func (c Config) Validate() error {
	if c.MaxComplexity < 1 || c.MaxComplexity > 100_000_000 {
		return &ConfigError{Field: "MaxComplexity", Message: "must be between 1 and 100,000,000"}
	}
	if c.MaxNameStates < 1 || c.MaxNameStates > 100_000_000 {
		return &ConfigError{Field: "MaxNameStates", Message: "must be between 1 and 100,000,000"}
	}
	return nil
}
