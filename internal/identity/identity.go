// Package identity manages the unprivileged execution identity baked into a
// runtime image. The (group, user) pair is created once at build time by
// editing the account databases inside the image root; the served process is
// launched under it for the image's whole lifetime.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stevedore/pkg/fs"
)

const (
	DefaultUser  = "appuser"
	DefaultGroup = "appgroup"
	DefaultUID   = 10001
	DefaultGID   = 10001

	nologinShell = "/usr/sbin/nologin"
)

var ErrConflict = errors.New("identity exists with different uid/gid")

// Identity is the non-privileged (group, user) pair the server runs as.
type Identity struct {
	User  string
	Group string
	UID   int
	GID   int
}

// Default returns the stock unprivileged identity.
func Default() Identity {
	return Identity{
		User:  DefaultUser,
		Group: DefaultGroup,
		UID:   DefaultUID,
		GID:   DefaultGID,
	}
}

// Owner returns the filesystem ownership pair for this identity.
func (id Identity) Owner() fs.Owner {
	return fs.Owner{UID: id.UID, GID: id.GID}
}

// Ensure creates the system group and user inside the image root. It is
// idempotent: re-running against a root that already carries the identity
// succeeds without duplicating entries. A name collision with a different
// uid or gid fails with ErrConflict.
func Ensure(root string, id Identity) error {
	etcDir := filepath.Join(root, "etc")
	if err := os.MkdirAll(etcDir, 0o755); err != nil {
		return fmt.Errorf("create etc directory: %w", err)
	}

	if err := ensureGroup(filepath.Join(etcDir, "group"), id); err != nil {
		return err
	}
	if err := ensureUser(filepath.Join(etcDir, "passwd"), id); err != nil {
		return err
	}
	// locked password, no expiry — a system account, not a login account
	return ensureShadow(filepath.Join(etcDir, "shadow"), id)
}

func ensureGroup(path string, id Identity) error {
	lines, err := readDatabase(path)
	if err != nil {
		return err
	}

	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) < 3 || fields[0] != id.Group {
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("parse group entry %q: %w", line, err)
		}
		if gid != id.GID {
			return fmt.Errorf("group %s: %w", id.Group, ErrConflict)
		}
		return nil // already present
	}

	entry := fmt.Sprintf("%s:x:%d:", id.Group, id.GID)
	return appendDatabase(path, lines, entry)
}

func ensureUser(path string, id Identity) error {
	lines, err := readDatabase(path)
	if err != nil {
		return err
	}

	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] != id.User {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("parse passwd entry %q: %w", line, err)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("parse passwd entry %q: %w", line, err)
		}
		if uid != id.UID || gid != id.GID {
			return fmt.Errorf("user %s: %w", id.User, ErrConflict)
		}
		return nil // already present
	}

	entry := fmt.Sprintf("%s:x:%d:%d::/nonexistent:%s", id.User, id.UID, id.GID, nologinShell)
	return appendDatabase(path, lines, entry)
}

func ensureShadow(path string, id Identity) error {
	lines, err := readDatabase(path)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if name, _, ok := strings.Cut(line, ":"); ok && name == id.User {
			return nil
		}
	}

	entry := fmt.Sprintf("%s:!:::::::", id.User)
	return appendDatabase(path, lines, entry)
}

// Lookup resolves the uid/gid of a user from the image root's passwd file.
func Lookup(root, user string) (uid, gid int, err error) {
	lines, err := readDatabase(filepath.Join(root, "etc", "passwd"))
	if err != nil {
		return 0, 0, err
	}

	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] != user {
			continue
		}
		uid, err = strconv.Atoi(fields[2])
		if err != nil {
			return 0, 0, fmt.Errorf("parse passwd entry %q: %w", line, err)
		}
		gid, err = strconv.Atoi(fields[3])
		if err != nil {
			return 0, 0, fmt.Errorf("parse passwd entry %q: %w", line, err)
		}
		return uid, gid, nil
	}

	return 0, 0, fmt.Errorf("user %s not found in image root", user)
}

func readDatabase(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func appendDatabase(path string, lines []string, entry string) error {
	lines = append(lines, entry)
	data := strings.Join(lines, "\n") + "\n"
	if err := fs.WriteFileAtomic(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
