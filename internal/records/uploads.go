package records

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrInvalidBase64 is returned for an image payload that is not valid base64.
var ErrInvalidBase64 = errors.New("invalid_base64")

// PublicPrefix is the URL path uploads are served under, whatever the
// directory on disk is called.
const PublicPrefix = "uploads"

// Uploads writes images under dir and hands back paths relative to the
// public root, e.g. "uploads/1699999999_abcdef.png".
type Uploads struct {
	dir string
	now func() time.Time
}

// NewUploads ensures dir exists.
func NewUploads(dir string) (*Uploads, error) {
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &Uploads{dir: dir, now: time.Now}, nil
}

func (u *Uploads) newName() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%d_%s.png", u.now().Unix(), hex[:6])
}

// SaveBase64 decodes a standard base64 image and stores it. An empty input
// stores nothing and returns "".
func (u *Uploads) SaveBase64(b64 string) (string, error) {
	if b64 == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", ErrInvalidBase64
	}
	return u.save(bytes.NewReader(data))
}

// SaveReader stores whatever r yields.
func (u *Uploads) SaveReader(r io.Reader) (string, error) {
	return u.save(r)
}

func (u *Uploads) save(r io.Reader) (string, error) {
	name := u.newName()
	f, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", errors.Wrap(err, "create upload")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, "write upload")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "close upload")
	}
	return PublicPrefix + "/" + name, nil
}

// Remove deletes a file previously returned by a Save method.
func (u *Uploads) Remove(saved string) error {
	if saved == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(u.dir, path.Base(saved))); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove upload")
	}
	return nil
}

// Dir is the directory uploads are written to.
func (u *Uploads) Dir() string {
	return u.dir
}
