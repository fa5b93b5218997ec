package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Owner is the (uid, gid) pair applied to copied trees.
type Owner struct {
	UID int
	GID int
}

// Chowner abstracts ownership changes so assembly can be exercised in tests
// that do not run as root.
type Chowner interface {
	Lchown(path string, owner Owner) error
}

// OSChowner applies ownership through the real syscall.
type OSChowner struct{}

func NewOSChowner() *OSChowner {
	return &OSChowner{}
}

func (c *OSChowner) Lchown(path string, owner Owner) error {
	return os.Lchown(path, owner.UID, owner.GID)
}

// NoOpChowner skips ownership changes. Useful for unprivileged test runs.
type NoOpChowner struct{}

func NewNoOpChowner() *NoOpChowner {
	return &NoOpChowner{}
}

func (c *NoOpChowner) Lchown(path string, owner Owner) error {
	return nil
}

// CopyTree copies the tree rooted at src into dst, assigning ownership of
// every created entry to owner. Symlinks are copied as links, permissions
// are preserved. dst is created if missing.
func CopyTree(src, dst string, owner Owner, chowner Chowner) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("dir info: %w", err)
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}

		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}

		case d.Type().IsRegular():
			if err := copyFile(path, target, d); err != nil {
				return err
			}

		default:
			// sockets, devices, pipes — not expected in source trees, skip
			return nil
		}

		if err := chowner.Lchown(target, owner); err != nil {
			return fmt.Errorf("chown %s: %w", target, err)
		}
		return nil
	})
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("file info: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return nil
}

// ChownTree recursively applies owner to every entry under root.
func ChownTree(root string, owner Owner, chowner Chowner) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := chowner.Lchown(path, owner); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
}
