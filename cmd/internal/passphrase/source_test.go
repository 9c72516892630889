package passphrase

import "testing"

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("TEST_KEYSTORE_PASS", "hunter2")
	source := NewSource("TEST_KEYSTORE_PASS")
	got, err := source.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("expected env passphrase, got %q", got)
	}
}

func TestSourceCachesFirstValue(t *testing.T) {
	t.Setenv("TEST_KEYSTORE_PASS", "first")
	source := NewSource("TEST_KEYSTORE_PASS")
	if got, err := source.Get(); err != nil || got != "first" {
		t.Fatalf("initial get: %q, %v", got, err)
	}
	t.Setenv("TEST_KEYSTORE_PASS", "second")
	if got, err := source.Get(); err != nil || got != "first" {
		t.Fatalf("expected cached value, got %q, %v", got, err)
	}
}

func TestSourceAllowsEmptyEnvValue(t *testing.T) {
	t.Setenv("TEST_KEYSTORE_PASS", "")
	source := NewSource("TEST_KEYSTORE_PASS")
	got, err := source.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty passphrase, got %q", got)
	}
}

func TestSourceFallsBackWithoutTerminal(t *testing.T) {
	source := NewSource("TEST_KEYSTORE_PASS_UNSET")
	got, err := source.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty fallback passphrase, got %q", got)
	}
}
