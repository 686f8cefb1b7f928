package rfc9111

import (
	"strconv"
	"time"
)

// §  1.2.2.  Delta Seconds
// §
// §     The delta-seconds rule specifies a non-negative integer, representing
// §     time in seconds.
// §
// §       delta-seconds  = 1*DIGIT
// §
// §     If a cache receives a delta-seconds value greater than the greatest
// §     integer it can represent, or if any of its subsequent calculations
// §     overflows, the cache MUST consider the value to be 2147483648 (2^31)
// §     or the greatest positive integer it can conveniently represent.
const maxDeltaSeconds = 2147483648

func deltaSeconds(secondsStr string) (time.Duration, bool) {
	for _, c := range secondsStr {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	seconds, err := strconv.ParseUint(secondsStr, 10, 64)
	if err != nil {
		if secondsStr == "" {
			return 0, false
		}
		// only digits, so this is an overflow
		seconds = maxDeltaSeconds
	}
	if seconds > maxDeltaSeconds {
		seconds = maxDeltaSeconds
	}
	return time.Second * time.Duration(seconds), true
}

func toDeltaSeconds(duration time.Duration) string {
	return strconv.FormatInt(int64(duration/time.Second), 10)
}
