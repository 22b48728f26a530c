package lease

import (
	"errors"
	"time"
)

// ErrHeld is returned when another live process owns the download lease
var ErrHeld = errors.New("download lease is held by another process")

// Info is the persisted lease (download_lease.json)
type Info struct {
	PID     int       `json:"pid"`
	Variant string    `json:"variant"`
	SinceTS time.Time `json:"since_ts"`
}

// Age returns how long the lease has been held
func (i Info) Age() time.Duration {
	return time.Since(i.SinceTS)
}
