package frequency

import (
	"time"

	"adDecisioning/domain"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
	weekWindow = 7 * 24 * time.Hour

	// retention is the longest window any cap looks at.
	retention = weekWindow
)

type Caps struct {
	PerHour           int
	PerDay            int
	PerWeek           int
	PerCampaignPerDay int
}

type Config struct {
	Defaults      Caps
	SweepInterval time.Duration
}

func ConfigFrom(c domain.FrequencyConfig) Config {
	return Config{
		Defaults: Caps{
			PerHour:           c.PerHour,
			PerDay:            c.PerDay,
			PerWeek:           c.PerWeek,
			PerCampaignPerDay: c.PerCampaignPerDay,
		},
		SweepInterval: time.Duration(c.SweepIntervalMinutes) * time.Minute,
	}
}

func DefaultConfig() Config {
	return ConfigFrom(domain.DefaultDecisioningConfig().Frequency)
}

// capsFor merges a campaign override over the defaults field by field.
func (c Config) capsFor(campaign domain.Campaign) Caps {
	caps := c.Defaults
	o := campaign.FrequencyCaps
	if o == nil {
		return caps
	}
	if o.PerHour > 0 {
		caps.PerHour = o.PerHour
	}
	if o.PerDay > 0 {
		caps.PerDay = o.PerDay
	}
	if o.PerWeek > 0 {
		caps.PerWeek = o.PerWeek
	}
	if o.PerCampaignPerDay > 0 {
		caps.PerCampaignPerDay = o.PerCampaignPerDay
	}
	return caps
}
