package rfc9111

import (
	"net/http"
	"strings"
	"time"
)

// §  5.1.  Age
// §
// §     The "Age" response header field conveys the sender's estimate of the
// §     time since the response was generated or successfully validated at
// §     the origin server.
// §
// §     Although it is defined as a singleton header field, a cache
// §     encountering a message with a list-based Age field value SHOULD use
// §     the first member of the field value, discarding subsequent ones.
// §
// §     If the field value (after discarding additional members, as per
// §     above) is invalid (e.g., it contains something other than a non-
// §     negative integer), a cache SHOULD ignore the field.
func getAge(res *http.Response) (time.Duration, bool) {
	values := GetListHeader(res.Header, "Age")
	if len(values) == 0 {
		return 0, false
	}
	return deltaSeconds(strings.TrimSpace(values[0]))
}

// AddAgeHeader sets the Age header of a response served from storage.
func AddAgeHeader(res *http.Response, storedAt time.Time) {
	if res.Header == nil {
		res.Header = http.Header{}
	}
	res.Header.Set("Age", toDeltaSeconds(CurrentAge(res, storedAt, time.Now())))
}
