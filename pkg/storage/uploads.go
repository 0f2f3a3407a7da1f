package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Uploads owns the directory holding accepted bundle files. Naming into
// and deleting from this directory happens only through this type.
type Uploads struct {
	dir string
}

// NewUploads prepares the upload directory, creating it when missing.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Spool writes an incoming stream to a temporary file inside the upload
// directory, so that the later link into place stays on one filesystem.
func (u *Uploads) Spool(r io.Reader) (string, error) {
	tmp := filepath.Join(u.dir, ".spool-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// Promote links a spooled file to its final name. The link fails with
// fs.ErrExist when a bundle already holds that name, so promoting can
// never overwrite an earlier upload's bytes. The link completes before
// the caller inserts the record, so a visible record always has a
// readable file behind it. The spool file survives until Discard, which
// lets the caller retry under a different name.
func (u *Uploads) Promote(tmpPath, filename string) error {
	return os.Link(tmpPath, u.Path(filename))
}

// Path returns the on-disk location of a stored bundle.
func (u *Uploads) Path(filename string) string {
	return filepath.Join(u.dir, filename)
}

// Remove deletes a stored bundle file. A file that is already gone is
// not an error; the sweeper treats that as recovered drift.
func (u *Uploads) Remove(filename string) error {
	err := os.Remove(u.Path(filename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Discard drops the spool file of a rejected upload.
func (u *Uploads) Discard(tmpPath string) {
	_ = os.Remove(tmpPath)
}
