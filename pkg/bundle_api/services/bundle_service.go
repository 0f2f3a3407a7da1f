package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/models"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/repositories"
	"github.com/sugarlabs/bundle-uploader/pkg/storage"
	"github.com/sugarlabs/bundle-uploader/pkg/xopkg"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidBundle rejects archives that are not well-formed .xo
// bundles: corrupt zips, no activity.info, or missing required keys.
var ErrInvalidBundle = errors.New("not a valid bundle archive")

// insertAttempts bounds the duplicate-filename retry loop.
const insertAttempts = 3

// BundleService implements the bundle lifecycle: accept, look up,
// mirror, expire.
type BundleService struct {
	repo       repositories.BundleRepository
	uploads    *storage.Uploads
	mirrorRoot string
	now        func() time.Time
}

// Option configures a BundleService.
type Option func(*BundleService)

// WithClock overrides the acceptance-time source, for deterministic
// tests.
func WithClock(now func() time.Time) Option {
	return func(s *BundleService) {
		s.now = now
	}
}

func NewBundleService(repo repositories.BundleRepository, uploads *storage.Uploads, mirrorRoot string, opts ...Option) *BundleService {
	s := &BundleService{
		repo:       repo,
		uploads:    uploads,
		mirrorRoot: mirrorRoot,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload runs the accept flow: spool the stream, validate the archive,
// extract its descriptor, link the file into place, insert the record.
// A rejected archive persists nothing and leaves no spool file behind.
func (s *BundleService) Upload(ctx context.Context, file io.Reader) (*models.Bundle, error) {
	tmp, err := s.uploads.Spool(file)
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	defer s.uploads.Discard(tmp)

	desc, err := readDescriptor(tmp)
	if err != nil {
		return nil, err
	}

	created := s.now().Unix()
	filename := xopkg.DeriveFilename(desc.Name, created)

	bundle := &models.Bundle{
		Filename: filename,
		Url:      "/raw/" + filename,
		Name:     optional(desc.Name),
		Version:  optional(desc.Version),
		Summary:  optional(desc.Summary),
		Icon:     desc.Icon,
		Created:  created,
	}

	// On a collision (the target file exists, or the insert hits the
	// primary-key constraint) pick a fresh disambiguated name and try
	// again; an earlier upload's file and record are never touched.
	for attempt := 1; ; attempt++ {
		err := s.promoteAndInsert(ctx, tmp, bundle)
		if err == nil {
			return bundle, nil
		}
		if !isNameCollision(err) || attempt == insertAttempts {
			return nil, fmt.Errorf("store bundle: %w", err)
		}

		next, derr := disambiguate(filename)
		if derr != nil {
			return nil, derr
		}
		bundle.Filename = next
		bundle.Url = "/raw/" + next
	}
}

// promoteAndInsert makes one attempt at claiming the bundle's filename.
// The file must be readable at its final path before the record becomes
// visible to readers; when the insert fails, the attempt's link is
// removed and the spool file still holds the bytes for a retry.
func (s *BundleService) promoteAndInsert(ctx context.Context, tmp string, b *models.Bundle) error {
	if err := s.uploads.Promote(tmp, b.Filename); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, b); err != nil {
		_ = s.uploads.Remove(b.Filename)
		return err
	}
	return nil
}

// isNameCollision reports whether the filename is already claimed, by a
// file on disk or by a record (same declared name accepted within the
// same second).
func isNameCollision(err error) bool {
	return errors.Is(err, fs.ErrExist) || errors.Is(err, repositories.ErrDuplicateKey)
}

func readDescriptor(path string) (xopkg.Descriptor, error) {
	archive, closeArchive, err := xopkg.Open(path)
	if err != nil {
		return xopkg.Descriptor{}, ErrInvalidBundle
	}
	defer closeArchive()

	if !archive.Valid() {
		return xopkg.Descriptor{}, ErrInvalidBundle
	}
	desc, err := archive.Descriptor()
	if err != nil {
		return xopkg.Descriptor{}, ErrInvalidBundle
	}
	return desc, nil
}

func disambiguate(filename string) (string, error) {
	tag, err := shortid.Generate()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(filename, xopkg.Suffix) + "-" + tag + xopkg.Suffix, nil
}

// Lookup returns the record for filename, or repositories.ErrNotFound.
func (s *BundleService) Lookup(ctx context.Context, filename string) (*models.Bundle, error) {
	return s.repo.FindByFilename(ctx, filename)
}

// Info returns the external view of a record, icon base64-encoded.
func (s *BundleService) Info(ctx context.Context, filename string) (*models.BundleInfo, error) {
	b, err := s.repo.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}

	info := &models.BundleInfo{
		Filename: b.Filename,
		Url:      b.Url,
		Created:  b.Created,
		Redirect: b.Redirect,
	}
	if b.Name != nil {
		info.Name = *b.Name
	}
	if b.Version != nil {
		info.Version = *b.Version
	}
	if b.Summary != nil {
		info.Summary = *b.Summary
	}
	if len(b.Icon) > 0 {
		info.Icon = base64.StdEncoding.EncodeToString(b.Icon)
	}
	return info, nil
}

// SetMirror points downloads of filename at a mirror copy. The local
// file and record stay in place.
func (s *BundleService) SetMirror(ctx context.Context, filename, target string) error {
	return s.repo.SetRedirect(ctx, filename, target)
}

// RedirectTarget resolves a record's mirror location against the
// configured mirror root.
func (s *BundleService) RedirectTarget(b *models.Bundle) string {
	return s.mirrorRoot + b.Redirect
}

// FilePath returns the on-disk location of a stored bundle.
func (s *BundleService) FilePath(filename string) string {
	return s.uploads.Path(filename)
}

// SweepExpired removes every bundle whose age meets or exceeds
// retention (inclusive boundary). Per candidate the order is mark,
// remove file, delete row, so a crash mid-sweep leaves an orphan file
// rather than a record without one; re-running the sweep is idempotent.
// Candidates are independent, so the pass runs with bounded
// concurrency. Returns how many bundles were expired.
func (s *BundleService) SweepExpired(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	bundles, err := s.repo.All(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Unix() - int64(retention/time.Second)

	const maxConcurrent = 4
	sem := semaphore.NewWeighted(maxConcurrent)
	g, ctx := errgroup.WithContext(ctx)
	var swept atomic.Int64

	for _, b := range bundles {
		if b.Created > cutoff {
			continue
		}
		b := b

		if err := sem.Acquire(ctx, 1); err != nil {
			return int(swept.Load()), err
		}
		g.Go(func() error {
			defer sem.Release(1)

			if err := s.expire(ctx, &b); err != nil {
				// One stuck bundle must not stop the pass.
				log.Printf("[sweep] skip %s: %v", b.Filename, err)
				return nil
			}
			swept.Add(1)
			return nil
		})
	}

	err = g.Wait()
	return int(swept.Load()), err
}

func (s *BundleService) expire(ctx context.Context, b *models.Bundle) error {
	if err := s.repo.MarkDeleted(ctx, b.Filename); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if err := s.uploads.Remove(b.Filename); err != nil {
		// The row must not outlive the pass, or it would point at a
		// file the next download cannot serve.
		log.Printf("[sweep] remove file %s: %v", b.Filename, err)
	}
	err := s.repo.Delete(ctx, b.Filename)
	if errors.Is(err, repositories.ErrNotFound) {
		// A concurrent sweep already reaped it.
		return nil
	}
	return err
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
