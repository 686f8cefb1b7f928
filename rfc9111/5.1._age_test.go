package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestGetAge(t *testing.T) {
	tests := []struct {
		value string
		age   time.Duration
		ok    bool
	}{
		{"7200", 7200 * time.Second, true},
		{"60, 120", 60 * time.Second, true},
		{"-5", 0, false},
		{"1.5", 0, false},
		{"99999999999999999999999", maxDeltaSeconds * time.Second, true},
	}
	for _, tt := range tests {
		res := &http.Response{Header: http.Header{"Age": {tt.value}}}
		if age, ok := getAge(res); age != tt.age || ok != tt.ok {
			t.Errorf("Age %q is %v, %v", tt.value, age, ok)
		}
	}
	if _, ok := getAge(&http.Response{Header: http.Header{}}); ok {
		t.Error("Missing Age reported as present")
	}
}

func TestCurrentAge(t *testing.T) {
	storedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := storedAt.Add(30 * time.Second)

	res := &http.Response{Header: http.Header{}}
	if age := CurrentAge(res, storedAt, now); age != 30*time.Second {
		t.Errorf("Age without headers is %v", age)
	}

	res.Header.Set("Date", storedAt.Add(-10*time.Second).Format(http.TimeFormat))
	if age := CurrentAge(res, storedAt, now); age != 40*time.Second {
		t.Errorf("Age with date is %v", age)
	}

	res.Header.Set("Age", "100")
	if age := CurrentAge(res, storedAt, now); age != 130*time.Second {
		t.Errorf("Age with age header is %v", age)
	}
}

func TestAddAgeHeader(t *testing.T) {
	res := &http.Response{Header: http.Header{"Age": {"5"}}}
	AddAgeHeader(res, time.Now())
	if age := res.Header.Get("Age"); age != "5" {
		t.Errorf("Age header is %q", age)
	}
}
