package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// swapFileTree replaces target with the staged tree. The previous content is
// moved aside first and put back if the new tree cannot be installed. An
// empty staged path installs an empty directory.
func swapFileTree(staged, target string) error {
	target = filepath.Clean(target)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	aside := ""
	if _, err := os.Lstat(target); err == nil {
		aside = fmt.Sprintf("%s.old-%s", target, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		if err := os.Rename(target, aside); err != nil {
			return fmt.Errorf("failed to move existing files aside: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := installTree(staged, target); err != nil {
		if aside != "" {
			os.RemoveAll(target)
			if rbErr := os.Rename(aside, target); rbErr != nil {
				return fmt.Errorf("%w (previous files remain at %s: %v)", err, aside, rbErr)
			}
		}
		return err
	}

	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			return fmt.Errorf("new files installed but %s could not be removed: %w", aside, err)
		}
	}
	return nil
}

func installTree(staged, target string) error {
	if staged == "" {
		return os.MkdirAll(target, 0o750)
	}
	if err := os.Rename(staged, target); err == nil {
		return nil
	}
	// staging may live on another filesystem
	return copyTree(staged, target)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(out, 0o750)
		case d.Type().IsRegular():
			return copyFile(p, out)
		default:
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
