package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvMissingFileIgnored(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file must be ignored, got %v", err)
	}
}

func TestLoadEnvParsesAndRespectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := `
# comment
FIB_TEST_PLAIN=value
FIB_TEST_QUOTED="quoted value"
FIB_TEST_EXISTING=from-file
not-a-pair
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("FIB_TEST_EXISTING", "from-env")
	t.Setenv("FIB_TEST_PLAIN", "")
	os.Unsetenv("FIB_TEST_PLAIN")
	os.Unsetenv("FIB_TEST_QUOTED")
	defer func() {
		os.Unsetenv("FIB_TEST_PLAIN")
		os.Unsetenv("FIB_TEST_QUOTED")
	}()

	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FIB_TEST_PLAIN"); got != "value" {
		t.Fatalf("plain = %q", got)
	}
	if got := os.Getenv("FIB_TEST_QUOTED"); got != "quoted value" {
		t.Fatalf("quoted = %q", got)
	}
	if got := os.Getenv("FIB_TEST_EXISTING"); got != "from-env" {
		t.Fatalf("existing value must win, got %q", got)
	}
}
