package db

import "time"

// ActivityEvent is one URL check recorded for a principal. Seq is the store's
// monotonic sequence and totally orders events; ActivityID is the public id.
type ActivityEvent struct {
	Seq         int64     `json:"-"`
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	URLRef      string    `json:"url_ref"`
	URLHash     string    `json:"url_hash,omitempty"`
	Domain      string    `json:"domain"`
	IsPhishing  bool      `json:"is_phishing"`
	ThreatType  string    `json:"threat_type,omitempty"`
	ThreatLevel string    `json:"threat_level"`
	Confidence  float64   `json:"confidence"`
	ActionTaken string    `json:"action_taken"`
	CountryCode string    `json:"country_code,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewActivity is the input to AppendActivity. CountryCode and CountryName are
// set only when the client address resolved to a country.
type NewActivity struct {
	UserID      string
	URLRef      string
	URLHash     string
	Domain      string
	IsPhishing  bool
	ThreatType  string
	ThreatLevel string
	Confidence  float64
	ActionTaken string
	CountryCode string
	CountryName string
}

type ThreatBreakdown struct {
	PhishingCount      int `json:"phishing_count"`
	MalwareCount       int `json:"malware_count"`
	CryptojackingCount int `json:"cryptojacking_count"`
	TotalCount         int `json:"total_count"`
}

type ThreatSource struct {
	CountryCode   string    `json:"country_code"`
	CountryName   string    `json:"country_name"`
	ThreatCount   int       `json:"threat_count"`
	PhishingCount int       `json:"phishing_count"`
	LastSeen      time.Time `json:"last_seen"`
}

// UserAnalytics is the per-principal dashboard summary.
type UserAnalytics struct {
	UserID              string          `json:"user_id"`
	TotalThreatsBlocked int64           `json:"total_threats_blocked"`
	RecentActivities    []ActivityEvent `json:"recent_activities"`
	ThreatBreakdown     ThreatBreakdown `json:"threat_breakdown"`
	ThreatSources       []ThreatSource  `json:"threat_sources"`
}
