package settings

// DB config keys editable by administrators at runtime.
const (
	// ControlNumberPrefixKey overrides the control-number prefix of new batches.
	ControlNumberPrefixKey = "CONTROL_NUMBER_PREFIX"
	// DefaultPerkTemplateKey names the perk template used when a batch names none.
	DefaultPerkTemplateKey = "DEFAULT_PERK_TEMPLATE"
	// SweepEnabledKey pauses the card expiry sweeper when false.
	SweepEnabledKey = "EXPIRY_SWEEP_ENABLED"
)
