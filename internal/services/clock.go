package services

import "time"

// Clock abstracts time for TTL and window arithmetic so expiry behaviour is
// testable without sleeping
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock
func SystemClock() Clock { return systemClock{} }
