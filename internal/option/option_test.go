package option

import "testing"

func TestMapSetGetCaseInsensitive(t *testing.T) {
	m := New()
	m.Set("R", "ch1")
	if !m.Has("r") {
		t.Fatal("expected Has(\"r\") after Set(\"R\", ...)")
	}
	if got := m.GetString("r", ""); got != "ch1" {
		t.Fatalf("GetString(\"r\") = %q, want ch1", got)
	}
}

func TestMapSynonym(t *testing.T) {
	m := New()
	m.Synonym("speed", "x")
	m.Set("x", "2.0")
	if got := m.GetFloat("speed", 0); got != 2.0 {
		t.Fatalf("GetFloat(\"speed\") via synonym x = %v, want 2.0", got)
	}
}

func TestGetStringDefaultMissingVsBlank(t *testing.T) {
	m := New()
	m.Set("gap", "")
	if got := m.GetStringDefault("gap", "missing", "blank"); got != "blank" {
		t.Fatalf("present-but-blank = %q, want blank", got)
	}
	if got := m.GetStringDefault("nope", "missing", "blank"); got != "missing" {
		t.Fatalf("absent = %q, want missing", got)
	}
}

func TestParseOptionStringOrderPreserved(t *testing.T) {
	m := ParseOptionString("r=ch1,m=publish,at=now-12", ",", "=")
	keys := m.Keys()
	want := []string{"r", "m", "at"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := New()
	m.Set("a", "1")
	clone := m.Clone()
	clone.Set("a", "2")
	if got := m.GetString("a", ""); got != "1" {
		t.Fatalf("original mutated via clone: got %q", got)
	}
}
