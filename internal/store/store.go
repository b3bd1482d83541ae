// Package store persists files transferred by write_file and serves them to read_file.
package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
)

// CheckName rejects names that are empty, absolute, contain NUL or escape the store root.
func CheckName(name string) error {
	switch {
	case name == "":
		return errors.Wrap(ErrInvalidName, "empty")
	case strings.IndexByte(name, 0) >= 0:
		return errors.Wrapf(ErrInvalidName, "%q contains NUL", name)
	case filepath.IsAbs(name) || strings.HasPrefix(name, "/"):
		return errors.Wrapf(ErrInvalidName, "%q is absolute", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return errors.Wrapf(ErrInvalidName, "%q leaves the file root", name)
		}
	}
	return nil
}

// Dir stores files below a root directory.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "create file root")
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(name)), nil
}

// WriteFile creates or truncates name and writes content.
func (d *Dir) WriteFile(name string, content []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return errors.Wrap(err, "create parent directory")
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if _, err = f.Write(content); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	return errors.Wrapf(f.Close(), "close %s", name)
}

func (d *Dir) ReadFile(name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return b, errors.Wrapf(err, "read %s", name)
}

func (d *Dir) Close() error {
	return nil
}
