package policy

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies and logs denials without enforcing them
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// DefaultQuery is the rego rule evaluated for every tool call. It may produce a boolean
// or an object {allow, reason}.
const DefaultQuery = "data.lina.tools.decision"

// Config holds policy engine configuration
type Config struct {
	Mode Mode `mapstructure:"mode"`

	// Path to a .rego file or a directory of .rego files
	Path string `mapstructure:"path"`

	// Query overrides DefaultQuery
	Query string `mapstructure:"query"`

	// FailClosed denies every call when policies cannot be loaded or evaluated
	FailClosed bool `mapstructure:"fail_closed"`

	// Environment is passed to policies as input.environment
	Environment string `mapstructure:"environment"`
}

// Normalize maps unknown modes to ModeOff and fills the default query.
func (c *Config) Normalize() {
	switch c.Mode {
	case ModeOff, ModeDryRun, ModeEnforce:
	default:
		c.Mode = ModeOff
	}
	if c.Query == "" {
		c.Query = DefaultQuery
	}
}
