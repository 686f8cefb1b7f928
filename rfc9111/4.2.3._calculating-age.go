package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.3.  Calculating Age
// §
// §     The Age header field is used to convey an estimated age of the
// §     response message when obtained from a cache.
//
// CurrentAge is the age of a stored response at now.
// The stored response is assumed to have been received at storedAt,
// with no network latency.
func CurrentAge(res *http.Response, storedAt, now time.Time) time.Duration {
	// §       apparent_age = max(0, response_time - date_value);
	var apparentAge time.Duration
	if date, err := http.ParseTime(res.Header.Get("Date")); err == nil {
		apparentAge = max(0, storedAt.Sub(date))
	}
	// §       response_delay = response_time - request_time;
	// §       corrected_age_value = age_value + response_delay;
	ageValue, _ := getAge(res)
	// §       corrected_initial_age = max(apparent_age, corrected_age_value);
	correctedInitialAge := max(apparentAge, ageValue)
	// §       resident_time = now - response_time;
	residentTime := max(0, now.Sub(storedAt))
	// §       current_age = corrected_initial_age + resident_time;
	return correctedInitialAge + residentTime
}
