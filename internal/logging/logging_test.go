package logging

import "testing"

func TestParseLevelMapping(t *testing.T) {
	cases := map[string]string{
		"trace":   "DEBUG",
		"debug":   "DEBUG",
		"":        "INFO",
		"info":    "INFO",
		"warning": "WARN",
		"warn":    "WARN",
		"error":   "ERROR",
		"fatal":   "ERROR",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
