package models

// Registration is a device registered for push notifications.
type Registration struct {
	ID    int64  `json:"id" db:"id"`
	RegID string `json:"regId" db:"reg_id"`
}
