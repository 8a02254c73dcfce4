package nnet

import (
	"strconv"
	"time"
)

// Timestamp is a monotonic microsecond-resolution time value. It is used
// everywhere the event loop needs to stamp an event (poll return time,
// timer expiration) without paying for a full time.Time on the hot path.
type Timestamp int64

// invalidTimestamp is the sentinel expiration timer.restart gives a one-shot
// timer, which never fires again.
const invalidTimestamp Timestamp = 0

// processStart anchors Now: its wall-clock reading fixes the epoch, and
// its monotonic reading drives every later value, so Now never steps back
// when the system clock is adjusted.
var processStart = time.Now()

// Now returns the current Timestamp.
func Now() Timestamp {
	return Timestamp(processStart.UnixMicro() + time.Since(processStart).Microseconds())
}

// Valid reports whether ts holds a real point in time.
func (ts Timestamp) Valid() bool {
	return ts > invalidTimestamp
}

// Add returns ts advanced by the given number of seconds, which may be
// fractional (e.g. 0.5 for 500ms).
func (ts Timestamp) Add(seconds float64) Timestamp {
	return ts + Timestamp(seconds*float64(time.Second/time.Microsecond))
}

// Sub returns the duration between ts and other.
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(ts-other) * time.Microsecond
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts < other
}

// Time converts ts back to a time.Time for display purposes.
func (ts Timestamp) Time() time.Time {
	return time.UnixMicro(int64(ts))
}

// String renders ts the way the original's Timestamp::toString does:
// seconds.microseconds since the epoch.
func (ts Timestamp) String() string {
	seconds := int64(ts) / 1000000
	microseconds := int64(ts) % 1000000
	return strconv.FormatInt(seconds, 10) + "." + pad6(microseconds)
}

func pad6(v int64) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
