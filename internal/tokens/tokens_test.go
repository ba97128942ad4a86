package tokens

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		at      time.Time
		want    string
	}{
		{
			name:    "path with all date tokens",
			pattern: "/files/{yyyy}/{mm}/{dd}",
			at:      time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
			want:    "/files/2026/02/23",
		},
		{
			name:    "two digit year",
			pattern: "report_{yy}{mm}{dd}.csv",
			at:      time.Date(2026, 2, 23, 14, 30, 0, 0, time.UTC),
			want:    "report_260223.csv",
		},
		{
			name:    "literal pattern unchanged",
			pattern: "/inbound/static/claims.csv",
			at:      time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
			want:    "/inbound/static/claims.csv",
		},
		{
			name:    "leap day",
			pattern: "{yyyy}-{mm}-{dd}",
			at:      time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			want:    "2024-02-29",
		},
		{
			name:    "year end boundary",
			pattern: "{yyyy}/{mm}/{dd}",
			at:      time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			want:    "2025/12/31",
		},
		{
			name:    "unknown placeholder passes through",
			pattern: "/files/{hh}/{dd}",
			at:      time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC),
			want:    "/files/{hh}/23",
		},
		{
			name:    "malformed braces pass through",
			pattern: "/files/{yyyy/{dd}",
			at:      time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
			want:    "/files/{yyyy/23",
		},
		{
			name:    "repeated tokens",
			pattern: "{dd}/{dd}",
			at:      time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
			want:    "05/05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.pattern, tt.at)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

// TestResolve_UsesLocalCalendarDate pins the timezone policy: the calendar
// date comes from the localized instant the caller passes in, so a schedule
// in Tokyo resolves to Tokyo's date even when UTC is still on the prior day.
func TestResolve_UsesLocalCalendarDate(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2026-02-22T23:00:00Z is already Feb 23 in Tokyo.
	utcInstant := time.Date(2026, 2, 22, 23, 0, 0, 0, time.UTC)

	if got := Resolve("{yyyy}-{mm}-{dd}", utcInstant.In(tokyo)); got != "2026-02-23" {
		t.Errorf("Tokyo resolution = %q, want 2026-02-23", got)
	}
	if got := Resolve("{yyyy}-{mm}-{dd}", utcInstant); got != "2026-02-22" {
		t.Errorf("UTC resolution = %q, want 2026-02-22", got)
	}
}

func TestContainsTokens(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"/files/{yyyy}/{mm}/{dd}", true},
		{"report_{yy}.csv", true},
		{"/inbound/claims.csv", false},
		{"", false},
		{"{hh}", false},
		{"{ yyyy }", false},
	}

	for _, tt := range tests {
		if got := ContainsTokens(tt.pattern); got != tt.want {
			t.Errorf("ContainsTokens(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}
