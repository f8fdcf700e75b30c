package subscriber

// Settings holds a subscriber's per-user notification configuration.
type Settings struct {
	// LeadMinutes is how many minutes before each occasion a reminder is
	// sent. Valid range is [1, 60]; the at-occasion alert is always sent.
	LeadMinutes int `json:"leadMinutes"`
}

// Subscriber is one notification recipient. ID is the Telegram chat ID.
type Subscriber struct {
	ID       int64    `json:"id"`
	Settings Settings `json:"settings"`
}

const (
	MinLeadMinutes     = 1
	MaxLeadMinutes     = 60
	DefaultLeadMinutes = 10
)

// DefaultSettings returns the settings applied to new and repaired records.
func DefaultSettings() Settings {
	return Settings{LeadMinutes: DefaultLeadMinutes}
}

// ValidLeadMinutes reports whether m is an acceptable lead-time value.
func ValidLeadMinutes(m int) bool {
	return m >= MinLeadMinutes && m <= MaxLeadMinutes
}
