package types

import "time"

// Level is the severity of an audit record.
type Level string

const (
	LevelInfo    Level = "Info"
	LevelWarning Level = "Warning"
)

// Record is one audit log line. The JSON field names are part of the log
// format and must not change.
type Record struct {
	// ID is assigned by stores that need a key; it is not written to the
	// log line.
	ID        string    `json:"-"`
	Time      time.Time `json:"time"`
	Level     Level     `json:"message_level"`
	User      string    `json:"user"`
	LoginUser string    `json:"login_user"`
	Host      string    `json:"host"`
	Cwd       string    `json:"cwd"`
	Message   string    `json:"message"`
}

type RecordQuery struct {
	User  string
	Level Level
	Since *time.Time
	Until *time.Time

	TextLike string

	Limit int
	Asc   bool
}
