package domain

import "time"

// FrequencyRecord is one entry of a user's impression log.
type FrequencyRecord struct {
	CampaignID string    `json:"c"`
	ShownAt    time.Time `json:"t"`
}
