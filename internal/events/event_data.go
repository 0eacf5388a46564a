package events

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RefreshStartedData contains data for RefreshStarted events
type RefreshStartedData struct {
	Accounts int `json:"accounts"`
}

// EventType returns the event type for RefreshStartedData
func (d *RefreshStartedData) EventType() EventType {
	return RefreshStarted
}

// AccountRefreshedData contains data for AccountRefreshed events
type AccountRefreshedData struct {
	AccountID     string `json:"account_id"`
	Cycles        int    `json:"cycles"`
	FeedUnhealthy bool   `json:"feed_unhealthy,omitempty"`
}

// EventType returns the event type for AccountRefreshedData
func (d *AccountRefreshedData) EventType() EventType {
	return AccountRefreshed
}

// AccountSkippedData contains data for AccountSkipped events
type AccountSkippedData struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// EventType returns the event type for AccountSkippedData
func (d *AccountSkippedData) EventType() EventType {
	return AccountSkipped
}

// AccountFailedData contains data for AccountFailed events
type AccountFailedData struct {
	AccountID string `json:"account_id"`
	Error     string `json:"error"`
}

// EventType returns the event type for AccountFailedData
func (d *AccountFailedData) EventType() EventType {
	return AccountFailed
}

// RefreshCompletedData contains data for RefreshCompleted events
type RefreshCompletedData struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// EventType returns the event type for RefreshCompletedData
func (d *RefreshCompletedData) EventType() EventType {
	return RefreshCompleted
}
