package services

import "testing"

func TestMatchesHeadingPattern(t *testing.T) {
	matching := []string{
		"1 Introduction",
		"2.3 Methods and Materials",
		"4.1.2 Experimental Results",
		"Chapter 1",
		"CHAPTER 3: Advanced Topics",
		"Section 2",
		"INTRODUCTION TO THERMODYNAMICS",
		"The Laws of Motion",
	}
	for _, line := range matching {
		if !MatchesHeadingPattern(line) {
			t.Errorf("MatchesHeadingPattern(%q) = false, want true", line)
		}
	}

	nonMatching := []string{
		"",
		"this is ordinary lowercase prose",
		"x",
	}
	for _, line := range nonMatching {
		if MatchesHeadingPattern(line) {
			t.Errorf("MatchesHeadingPattern(%q) = true, want false", line)
		}
	}
}

func TestIsValidHeading(t *testing.T) {
	valid := []string{
		"1.1 Introduction",
		"Chapter 4: Neural Networks",
		"INTRODUCTION TO THERMODYNAMICS",
		"2.3 Core Concepts",
	}
	for _, s := range valid {
		if !IsValidHeading(s) {
			t.Errorf("IsValidHeading(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"ab",              // too short
		"NASA",            // bare acronym
		"42",              // page number
		"12 - 14",         // page range
		"page 12",         // page reference
		"123 Main Street", // address fragment
		"3.1 Contents",    // numbered table header
		"1.2 Page",        // numbered table header
		"4.5",             // number with no label
	}
	for _, s := range invalid {
		if IsValidHeading(s) {
			t.Errorf("IsValidHeading(%q) = true, want false", s)
		}
	}
}

func TestHeadingTitle(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"2.3 Core Concepts", "Core Concepts"},
		{"1 Introduction", "Introduction"},
		{"4.1.2. Results", "Results"},
		{"Summary", "Summary"},
	}
	for _, tt := range tests {
		if got := HeadingTitle(tt.line); got != tt.want {
			t.Errorf("HeadingTitle(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
