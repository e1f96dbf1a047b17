package domain

import (
	"strings"
	"time"
)

var AgeGroups = []string{"18-24", "25-34", "35-44", "45-54", "55-64", "65+"}

// Demographic attributes are all optional; pointer fields distinguish
// "unknown" from zero.
type Demographic struct {
	Age           *int   `json:"age,omitempty"`
	AgeGroup      string `json:"age_group,omitempty"`
	Gender        string `json:"gender,omitempty"`
	IncomeBracket *int   `json:"income_bracket,omitempty"` // 0..4
	Location      string `json:"location,omitempty"`
}

// ResolvedAgeGroup returns AgeGroup, deriving it from Age when only the
// numeric age is known.
func (d Demographic) ResolvedAgeGroup() string {
	if d.AgeGroup != "" {
		return d.AgeGroup
	}
	if d.Age == nil {
		return ""
	}
	switch a := *d.Age; {
	case a < 18:
		return ""
	case a < 25:
		return "18-24"
	case a < 35:
		return "25-34"
	case a < 45:
		return "35-44"
	case a < 55:
		return "45-54"
	case a < 65:
		return "55-64"
	default:
		return "65+"
	}
}

type Behavioral struct {
	SessionsLast30d    int     `json:"sessions_last_30d,omitempty"`
	AvgSessionSeconds  float64 `json:"avg_session_seconds,omitempty"`
	ClickThroughRate   float64 `json:"click_through_rate,omitempty"`
	PurchasesLast90d   int     `json:"purchases_last_90d,omitempty"`
	DaysSinceLastVisit *int    `json:"days_since_last_visit,omitempty"`
}

type UserFeatures struct {
	Demographic Demographic `json:"demographic"`
	Behavioral  Behavioral  `json:"behavioral"`
	Interests   []string    `json:"interests,omitempty"`
	// Embedding is an optional precomputed interest embedding.
	Embedding []float64 `json:"embedding,omitempty"`
	Segment   string    `json:"segment,omitempty"`
}

// SegmentKey is the key used for segment-level lift lookups.
func (u UserFeatures) SegmentKey() string {
	if u.Segment != "" {
		return u.Segment
	}
	parts := []string{u.Demographic.ResolvedAgeGroup(), strings.ToLower(u.Demographic.Location)}
	if parts[0] == "" && parts[1] == "" {
		return "default"
	}
	return strings.Join(parts, "|")
}

type ContextFeatures struct {
	DeviceType    string    `json:"device_type,omitempty"`
	Location      string    `json:"location,omitempty"`
	Hour          *int      `json:"hour,omitempty"`
	DayOfWeek     *int      `json:"day_of_week,omitempty"`
	SessionLength float64   `json:"session_length,omitempty"` // seconds
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// ResolveTime returns the request time, falling back to now.
func (c ContextFeatures) ResolveTime(now time.Time) time.Time {
	if !c.Timestamp.IsZero() {
		return c.Timestamp
	}
	return now
}

func (c ContextFeatures) ResolveHour(now time.Time) int {
	if c.Hour != nil && *c.Hour >= 0 && *c.Hour < 24 {
		return *c.Hour
	}
	return c.ResolveTime(now).Hour()
}

func (c ContextFeatures) ResolveWeekday(now time.Time) int {
	if c.DayOfWeek != nil && *c.DayOfWeek >= 0 && *c.DayOfWeek < 7 {
		return *c.DayOfWeek
	}
	return int(c.ResolveTime(now).Weekday())
}

// ResolveLocation prefers the request location over the profile location.
func (c ContextFeatures) ResolveLocation(u UserFeatures) string {
	if c.Location != "" {
		return c.Location
	}
	return u.Demographic.Location
}
