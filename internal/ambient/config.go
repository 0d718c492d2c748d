package ambient

// Provider keys of the execution context.
const (
	CurrentUserProviderKey   = "CurrentUserProvider"
	CurrentTenantProviderKey = "CurrentTenantProvider"
	CurrentLocaleProviderKey = "CurrentLocaleProvider"
	SoftDeleteConfigKey      = "SoftDeleteConfig"
	MultiTenancyConfigKey    = "MultiTenancyConfig"
	LocalizationConfigKey    = "LocalizationConfig"
)

// SoftDeleteConfig controls soft deletion for one scope.
//
// When disabled, removing a soft-deletable entity deletes the row. The query
// filter hides flagged rows while enabled.
type SoftDeleteConfig struct {
	enabled     *Toggle
	queryFilter *Toggle
}

// NewSoftDeleteConfig returns a config with soft deletion and its filter enabled.
func NewSoftDeleteConfig() *SoftDeleteConfig {
	return &SoftDeleteConfig{enabled: NewToggle(true), queryFilter: NewToggle(true)}
}

func (c *SoftDeleteConfig) IsEnabled() bool            { return c.enabled.Value() }
func (c *SoftDeleteConfig) IsQueryFilterEnabled() bool { return c.queryFilter.Value() }

func (c *SoftDeleteConfig) Enable() *RestoreAction             { return c.enabled.Set(true) }
func (c *SoftDeleteConfig) Disable() *RestoreAction            { return c.enabled.Set(false) }
func (c *SoftDeleteConfig) EnableQueryFilter() *RestoreAction  { return c.queryFilter.Set(true) }
func (c *SoftDeleteConfig) DisableQueryFilter() *RestoreAction { return c.queryFilter.Set(false) }

// MultiTenancyConfig controls the tenant query filter for one scope.
type MultiTenancyConfig struct {
	queryFilter *Toggle
}

// NewMultiTenancyConfig returns a config with the tenant filter enabled.
func NewMultiTenancyConfig() *MultiTenancyConfig {
	return &MultiTenancyConfig{queryFilter: NewToggle(true)}
}

func (c *MultiTenancyConfig) IsQueryFilterEnabled() bool         { return c.queryFilter.Value() }
func (c *MultiTenancyConfig) EnableQueryFilter() *RestoreAction  { return c.queryFilter.Set(true) }
func (c *MultiTenancyConfig) DisableQueryFilter() *RestoreAction { return c.queryFilter.Set(false) }

// LocalizationConfig controls the locale query filter for one scope.
type LocalizationConfig struct {
	queryFilter *Toggle
}

// NewLocalizationConfig returns a config with the locale filter enabled.
func NewLocalizationConfig() *LocalizationConfig {
	return &LocalizationConfig{queryFilter: NewToggle(true)}
}

func (c *LocalizationConfig) IsQueryFilterEnabled() bool         { return c.queryFilter.Value() }
func (c *LocalizationConfig) EnableQueryFilter() *RestoreAction  { return c.queryFilter.Set(true) }
func (c *LocalizationConfig) DisableQueryFilter() *RestoreAction { return c.queryFilter.Set(false) }
