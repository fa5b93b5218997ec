package identity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureCreatesUserAndGroup(t *testing.T) {
	root := t.TempDir()
	id := Default()

	if err := Ensure(root, id); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	passwd, err := os.ReadFile(filepath.Join(root, "etc", "passwd"))
	if err != nil {
		t.Fatalf("read passwd: %v", err)
	}
	wantPasswd := "appuser:x:10001:10001::/nonexistent:/usr/sbin/nologin"
	if !strings.Contains(string(passwd), wantPasswd) {
		t.Errorf("passwd = %q, missing %q", passwd, wantPasswd)
	}

	group, err := os.ReadFile(filepath.Join(root, "etc", "group"))
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if !strings.Contains(string(group), "appgroup:x:10001:") {
		t.Errorf("group = %q, missing appgroup entry", group)
	}

	shadow, err := os.ReadFile(filepath.Join(root, "etc", "shadow"))
	if err != nil {
		t.Fatalf("read shadow: %v", err)
	}
	if !strings.Contains(string(shadow), "appuser:!:") {
		t.Errorf("shadow = %q, missing locked appuser entry", shadow)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	root := t.TempDir()
	id := Default()

	if err := Ensure(root, id); err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	if err := Ensure(root, id); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	passwd, err := os.ReadFile(filepath.Join(root, "etc", "passwd"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(passwd), "appuser:"); got != 1 {
		t.Errorf("passwd has %d appuser entries, want 1", got)
	}

	group, err := os.ReadFile(filepath.Join(root, "etc", "group"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(group), "appgroup:"); got != 1 {
		t.Errorf("group has %d appgroup entries, want 1", got)
	}
}

func TestEnsureConflictingIdentity(t *testing.T) {
	root := t.TempDir()

	if err := Ensure(root, Default()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	conflicting := Default()
	conflicting.UID = 2000
	err := Ensure(root, conflicting)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Ensure with conflicting uid: error = %v, want ErrConflict", err)
	}
}

func TestEnsurePreservesExistingEntries(t *testing.T) {
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(etc, "passwd"), []byte("root:x:0:0:root:/root:/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(etc, "group"), []byte("root:x:0:\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Ensure(root, Default()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	passwd, err := os.ReadFile(filepath.Join(etc, "passwd"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(passwd), "root:x:0:0:") {
		t.Errorf("root entry lost: %q", passwd)
	}
	if !strings.Contains(string(passwd), "appuser:x:10001:") {
		t.Errorf("appuser entry missing: %q", passwd)
	}
}

func TestLookup(t *testing.T) {
	root := t.TempDir()
	if err := Ensure(root, Default()); err != nil {
		t.Fatal(err)
	}

	uid, gid, err := Lookup(root, "appuser")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if uid != DefaultUID || gid != DefaultGID {
		t.Errorf("Lookup = (%d, %d), want (%d, %d)", uid, gid, DefaultUID, DefaultGID)
	}

	if _, _, err := Lookup(root, "ghost"); err == nil {
		t.Error("Lookup of unknown user succeeded")
	}
}
