package fmea

import "testing"

func TestRPN(t *testing.T) {
	tests := []struct {
		name    string
		scores  Scores
		want    int
		urgency string
	}{
		{"worst case", Scores{10, 10, 10}, 1000, UrgencyImmediate},
		{"immediate boundary", Scores{8, 5, 5}, 200, UrgencyImmediate},
		{"high", Scores{7, 4, 6}, 168, UrgencyHigh},
		{"high boundary", Scores{5, 5, 5}, 125, UrgencyHigh},
		{"medium boundary", Scores{5, 5, 3}, 75, UrgencyMedium},
		{"low", Scores{3, 4, 6}, 72, UrgencyLow},
		{"best case", Scores{1, 1, 1}, 1, UrgencyLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RPN(tt.scores)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected rpn %d, got %d", tt.want, got)
			}
			if u := Urgency(got); u != tt.urgency {
				t.Fatalf("expected urgency %s, got %s", tt.urgency, u)
			}
		})
	}
}

func TestRPNRejectsOutOfRangeScores(t *testing.T) {
	for _, scores := range []Scores{{0, 5, 5}, {5, 11, 5}, {5, 5, -1}} {
		if _, err := RPN(scores); err == nil {
			t.Fatalf("expected error for scores %+v", scores)
		}
	}
}

func TestRecommendable(t *testing.T) {
	if Recommendable(UrgencyLow) {
		t.Fatalf("LOW must not produce recommendations")
	}
	for _, u := range []string{UrgencyMedium, UrgencyHigh, UrgencyImmediate} {
		if !Recommendable(u) {
			t.Fatalf("%s must produce recommendations", u)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]int{50, 100, 168, 72})
	if s.Count != 4 {
		t.Fatalf("expected count 4, got %d", s.Count)
	}
	if s.MaxRPN != 168 {
		t.Fatalf("expected max 168, got %d", s.MaxRPN)
	}
	if s.AvgRPN != 97.5 {
		t.Fatalf("expected avg 97.5, got %v", s.AvgRPN)
	}
	if s.HighRiskCount != 2 {
		t.Fatalf("expected 2 high-risk assessments, got %d", s.HighRiskCount)
	}
	empty := Summarize(nil)
	if empty.Count != 0 || empty.AvgRPN != 0 {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}
