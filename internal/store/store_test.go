package store

import "testing"

func TestHistoricalMatchIsRemake(t *testing.T) {
	short := int64(120)
	long := int64(1800)

	cases := []struct {
		name     string
		duration *int64
		want     bool
	}{
		{"nil duration is not a remake", nil, false},
		{"under five minutes is a remake", &short, true},
		{"over five minutes is not a remake", &long, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := HistoricalMatch{GameDuration: c.duration}
			if got := m.IsRemake(); got != c.want {
				t.Errorf("IsRemake() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil error should not be a unique violation")
	}
}
