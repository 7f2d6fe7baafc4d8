package nickauth

import "time"

// Clock supplies the current time for every expiry decision the engine
// makes: lockout, reset token expiry, refresh list pruning and JWT
// validation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
