package xopkg

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/ini.v1"
)

// Suffix marks stored bundle files. Existing corpora are named with it,
// so it must not change.
const Suffix = ".xo"

const activitySection = "Activity"

// ErrNoDescriptor is returned when an archive has no activity.info entry.
var ErrNoDescriptor = errors.New("bundle has no activity/activity.info entry")

// Descriptor holds the metadata a bundle declares in its activity.info.
// Name and BundleID are required for a bundle to be valid; everything
// else may be empty.
type Descriptor struct {
	Name     string
	BundleID string
	Version  string
	Summary  string
	Icon     []byte
}

// Archive is a read handle over one .xo bundle (a zip file). It is
// transient: open, validate, extract, discard.
type Archive struct {
	zr *zip.Reader
}

// New wraps an already opened zip reader.
func New(zr *zip.Reader) *Archive {
	return &Archive{zr: zr}
}

// Open reads the bundle file at p. The returned close function must be
// called once the archive is no longer needed. A file that is not a zip
// archive yields an error; callers treat that the same as an invalid
// bundle.
func Open(p string) (*Archive, func(), error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, nil, err
	}
	return &Archive{zr: &rc.Reader}, func() { _ = rc.Close() }, nil
}

// Valid reports whether the archive is a well-formed bundle: at least
// one entry, a {base}/activity/activity.info descriptor, and an
// [Activity] section declaring both name and bundle_id. Parse failures
// mean invalid, never an error.
func (a *Archive) Valid() bool {
	if len(a.zr.File) == 0 {
		return false
	}
	entry, _ := a.descriptorEntry()
	if entry == nil {
		return false
	}
	sec, err := a.activity(entry)
	if err != nil {
		return false
	}
	return sec.HasKey("name") && sec.HasKey("bundle_id")
}

// Descriptor extracts the declared metadata. Callers are expected to
// have checked Valid first; a missing descriptor still returns an error
// rather than panicking.
func (a *Archive) Descriptor() (Descriptor, error) {
	entry, base := a.descriptorEntry()
	if entry == nil {
		return Descriptor{}, ErrNoDescriptor
	}
	sec, err := a.activity(entry)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse %s: %w", entry.Name, err)
	}

	d := Descriptor{
		Name:     sec.Key("name").String(),
		BundleID: sec.Key("bundle_id").String(),
		Version:  sec.Key("activity_version").String(),
		Summary:  sec.Key("summary").String(),
	}
	if icon := sec.Key("icon").String(); icon != "" {
		d.Icon = a.readIcon(base, icon)
	}
	return d, nil
}

// descriptorEntry scans all entries for {base}/activity/activity.info,
// where base is a single top-level directory. Zip entry order is not
// guaranteed, so the descriptor is located by match, not by position.
func (a *Archive) descriptorEntry() (*zip.File, string) {
	for _, f := range a.zr.File {
		parts := strings.Split(f.Name, "/")
		if len(parts) == 3 && parts[0] != "" && parts[1] == "activity" && parts[2] == "activity.info" {
			return f, parts[0]
		}
	}
	return nil, ""
}

func (a *Archive) activity(entry *zip.File) (*ini.Section, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	cfg, err := ini.Load(rc)
	if err != nil {
		return nil, err
	}
	return cfg.GetSection(activitySection)
}

// readIcon probes the unsuffixed path first: activity.info may declare
// the icon with or without its .svg extension.
func (a *Archive) readIcon(base, name string) []byte {
	for _, p := range []string{
		path.Join(base, "activity", name),
		path.Join(base, "activity", name+".svg"),
	} {
		entry := a.entry(p)
		if entry == nil {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

func (a *Archive) entry(name string) *zip.File {
	for _, f := range a.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
