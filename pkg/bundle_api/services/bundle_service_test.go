package services_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/database"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/models"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/repositories"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/services"
	"github.com/sugarlabs/bundle-uploader/pkg/storage"
)

const bibliographyInfo = `[Activity]
name = Bibliography
bundle_id = org.sugarlabs.BibliographyActivity
activity_version = 2
summary = Need a bibliography?
icon = activity-icon
`

type fixture struct {
	repo    repositories.BundleRepository
	uploads *storage.Uploads
	svc     *services.BundleService
	dir     string
}

func setup(t *testing.T, opts ...services.Option) *fixture {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)

	dir := t.TempDir()
	uploads, err := storage.NewUploads(dir)
	require.NoError(t, err)

	repo := repositories.NewBundleRepository(db)
	svc := services.NewBundleService(repo, uploads, "https://download.sugarlabs.org/activities2/", opts...)
	return &fixture{repo: repo, uploads: uploads, svc: svc, dir: dir}
}

func zipBytes(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func bibliographyBundle(t *testing.T) []byte {
	return zipBytes(t, map[string][]byte{
		"Bibliography.activity/activity/activity.info": []byte(bibliographyInfo),
		"Bibliography.activity/activity/activity-icon": []byte("<svg/>"),
		"Bibliography.activity/setup.py":               []byte("pass"),
	})
}

func TestUpload_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bundle, err := f.svc.Upload(ctx, bytes.NewReader(bibliographyBundle(t)))
	require.NoError(t, err)

	assert.Regexp(t, `^Bibliography-\d+\.xo$`, bundle.Filename)
	assert.Equal(t, "/raw/"+bundle.Filename, bundle.Url)
	assert.Equal(t, "Bibliography", *bundle.Name)
	assert.Equal(t, "2", *bundle.Version)
	assert.Equal(t, "Need a bibliography?", *bundle.Summary)
	assert.Equal(t, []byte("<svg/>"), bundle.Icon)
	assert.FileExists(t, f.uploads.Path(bundle.Filename))

	got, err := f.svc.Lookup(ctx, bundle.Filename)
	require.NoError(t, err)
	assert.Equal(t, bundle.Filename, got.Filename)
	assert.Equal(t, "Bibliography", *got.Name)

	info, err := f.svc.Info(ctx, bundle.Filename)
	require.NoError(t, err)
	assert.Equal(t, "Bibliography", info.Name)
	assert.Equal(t, "PHN2Zy8+", info.Icon) // base64 of "<svg/>"
}

func TestUpload_RejectsGarbage(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Upload(context.Background(), bytes.NewReader([]byte("not a zip")))
	assert.ErrorIs(t, err, services.ErrInvalidBundle)

	// Nothing persisted, nothing spooled.
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	all, err := f.repo.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpload_RejectsMissingRequiredKeys(t *testing.T) {
	f := setup(t)

	raw := zipBytes(t, map[string][]byte{
		"a.activity/activity/activity.info": []byte("[Activity]\nname = A\n"),
	})
	_, err := f.svc.Upload(context.Background(), bytes.NewReader(raw))
	assert.ErrorIs(t, err, services.ErrInvalidBundle)
}

func TestUpload_SameSecondCollision(t *testing.T) {
	at := time.Unix(1690000000, 0)
	f := setup(t, services.WithClock(func() time.Time { return at }))
	ctx := context.Background()

	// Same declared name, different payloads, accepted in the same
	// second, so both derive the same filename.
	rawFirst := bibliographyBundle(t)
	rawSecond := zipBytes(t, map[string][]byte{
		"Bibliography.activity/activity/activity.info": []byte(bibliographyInfo),
		"Bibliography.activity/NEWS":                   []byte("v2"),
	})

	first, err := f.svc.Upload(ctx, bytes.NewReader(rawFirst))
	require.NoError(t, err)

	second, err := f.svc.Upload(ctx, bytes.NewReader(rawSecond))
	require.NoError(t, err)

	// Neither upload may silently overwrite the other: distinct names,
	// and each stored file still holds its own bytes.
	assert.NotEqual(t, first.Filename, second.Filename)

	gotFirst, err := os.ReadFile(f.uploads.Path(first.Filename))
	require.NoError(t, err)
	assert.Equal(t, rawFirst, gotFirst)

	gotSecond, err := os.ReadFile(f.uploads.Path(second.Filename))
	require.NoError(t, err)
	assert.Equal(t, rawSecond, gotSecond)

	for _, filename := range []string{first.Filename, second.Filename} {
		got, err := f.svc.Lookup(ctx, filename)
		require.NoError(t, err)
		assert.Equal(t, filename, got.Filename)
	}
}

func TestSetMirror(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bundle, err := f.svc.Upload(ctx, bytes.NewReader(bibliographyBundle(t)))
	require.NoError(t, err)

	require.NoError(t, f.svc.SetMirror(ctx, bundle.Filename, "mirrored.xo"))

	got, err := f.svc.Lookup(ctx, bundle.Filename)
	require.NoError(t, err)
	assert.Equal(t, "mirrored.xo", got.Redirect)
	assert.Equal(t, "https://download.sugarlabs.org/activities2/mirrored.xo", f.svc.RedirectTarget(got))

	// The local file and record stay when a redirect is set.
	assert.FileExists(t, f.uploads.Path(bundle.Filename))

	assert.ErrorIs(t, f.svc.SetMirror(ctx, "nope.xo", "x"), repositories.ErrNotFound)
}

func insertAged(t *testing.T, f *fixture, filename string, created int64, withFile bool) {
	t.Helper()
	name := "Old"
	require.NoError(t, f.repo.Insert(context.Background(), &models.Bundle{
		Filename: filename,
		Url:      "/raw/" + filename,
		Name:     &name,
		Created:  created,
	}))
	if withFile {
		require.NoError(t, os.WriteFile(f.uploads.Path(filename), []byte("payload"), 0o644))
	}
}

func TestSweepExpired_Boundary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	now := time.Unix(2000000, 0)
	retention := time.Hour

	// Exactly at the threshold: swept (inclusive boundary).
	insertAged(t, f, "at-boundary.xo", now.Unix()-3600, true)
	// One second younger: kept.
	insertAged(t, f, "too-young.xo", now.Unix()-3600+1, true)

	swept, err := f.svc.SweepExpired(ctx, now, retention)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	_, err = f.svc.Lookup(ctx, "at-boundary.xo")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoFileExists(t, f.uploads.Path("at-boundary.xo"))

	got, err := f.svc.Lookup(ctx, "too-young.xo")
	require.NoError(t, err)
	assert.Equal(t, "too-young.xo", got.Filename)
	assert.FileExists(t, f.uploads.Path("too-young.xo"))
}

func TestSweepExpired_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	now := time.Unix(2000000, 0)
	insertAged(t, f, "old.xo", now.Unix()-7200, true)

	swept, err := f.svc.SweepExpired(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	swept, err = f.svc.SweepExpired(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSweepExpired_MissingFileStillDeletesRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	now := time.Unix(2000000, 0)
	insertAged(t, f, "orphan-record.xo", now.Unix()-7200, false)

	swept, err := f.svc.SweepExpired(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	all, err := f.repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
