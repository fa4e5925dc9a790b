package appointment

import "time"

// Clock abstracts time retrieval so rule evaluation is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads wall-clock time in UTC at the store's microsecond precision,
// so a timestamp read back from the store equals the one that was written.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
