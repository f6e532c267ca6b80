package models

import "time"

// Credentials are the basic-auth credentials proven valid by a successful
// upstream search. Secret is replayed upstream as-is and must never be
// serialized into a response or a log line.
type Credentials struct {
	Identity string `json:"identity"`
	Secret   string `json:"-"`
}

// SessionStatus is the public view of a credential session.
type SessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// Activity is one entry of the activity log. It never carries secrets.
type Activity struct {
	ID         string        `json:"id" db:"id"`
	RequestID  string        `json:"request_id" db:"request_id"`
	Operation  string        `json:"operation" db:"operation"` // "search" or "download"
	Username   string        `json:"username" db:"username"`
	Target     string        `json:"target,omitempty" db:"target"`
	Outcome    string        `json:"outcome" db:"outcome"` // "ok" or an error kind
	StatusCode int           `json:"status_code" db:"status_code"`
	Bytes      int64         `json:"bytes" db:"bytes"`
	Duration   time.Duration `json:"duration" db:"duration_ms"`
	ClientIP   string        `json:"client_ip" db:"client_ip"`
	DeviceInfo string        `json:"device_info" db:"device_info"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}
