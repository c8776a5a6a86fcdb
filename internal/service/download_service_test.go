package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

type documentSourceStub struct {
	filename string
	body     string
	err      error
}

func (s documentSourceStub) Download(_ context.Context, id string) (*models.DownloadDescriptor, error) {
	if s.err != nil {
		return nil, s.err
	}
	filename := s.filename
	if filename == "" {
		filename = ResolveFilename("", id)
	}
	return &models.DownloadDescriptor{
		RecordID: id,
		Filename: filename,
		Body:     io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

// countingSpool records how often each temporary file is deleted.
type countingSpool struct {
	*storage.LocalStorage
	mu      sync.Mutex
	created []string
	deletes map[string]int
}

func newCountingSpool(t *testing.T) *countingSpool {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return &countingSpool{LocalStorage: store, deletes: map[string]int{}}
}

func (c *countingSpool) CreateTemp(pattern string) (*os.File, error) {
	file, err := c.LocalStorage.CreateTemp(pattern)
	if err == nil {
		c.mu.Lock()
		c.created = append(c.created, file.Name())
		c.mu.Unlock()
	}
	return file, err
}

func (c *countingSpool) Delete(name string) error {
	c.mu.Lock()
	c.deletes[name]++
	c.mu.Unlock()
	return c.LocalStorage.Delete(name)
}

func (c *countingSpool) assertReleasedOnce(t *testing.T) {
	t.Helper()
	require.Len(t, c.created, 1)
	require.Len(t, c.deletes, 1)
	for name, count := range c.deletes {
		assert.Equal(t, 1, count, "temporary file %s", name)
	}
	_, err := os.Stat(c.created[0])
	assert.True(t, os.IsNotExist(err), "temporary file left behind")
}

type sinkFunc func(ctx context.Context, filename string, file *os.File, size int64) (string, error)

func (f sinkFunc) Deliver(ctx context.Context, filename string, file *os.File, size int64) (string, error) {
	return f(ctx, filename, file, size)
}

type journalStub struct {
	entries []models.JournalEntry
	err     error
}

func (j *journalStub) Record(_ context.Context, entry *models.JournalEntry) error {
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, *entry)
	return nil
}

func (j *journalStub) List(_ context.Context, limit int) ([]models.JournalEntry, error) {
	if len(j.entries) > limit {
		return j.entries[:limit], nil
	}
	return j.entries, nil
}

func TestResolveFilename(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
	}{
		"missing header":  {"", "content_42.pdf"},
		"quoted":          {`attachment; filename="volcanoes.pdf"`, "volcanoes.pdf"},
		"unquoted":        {"attachment; filename=rivers.pdf", "rivers.pdf"},
		"unquoted spaces": {"attachment; filename=my notes.pdf", "my notes.pdf"},
		"rfc 2231":        {"attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf", "résumé.pdf"},
		"no filename":     {"inline", "content_42.pdf"},
		"path traversal":  {`attachment; filename="../../etc/passwd"`, "passwd"},
		"windows path":    {`attachment; filename="C:\temp\fiche.pdf"`, "fiche.pdf"},
		"single quotes":   {"attachment; filename='cours.pdf'", "cours.pdf"},
		"only dots":       {`attachment; filename=".."`, "content_42.pdf"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveFilename(tc.header, "42"))
		})
	}
}

func TestDownloadServiceFallbackFilenameAndFileSink(t *testing.T) {
	spool := newCountingSpool(t)
	target, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	journal := &journalStub{}
	svc := NewDownloadService(documentSourceStub{body: "%PDF"}, spool, journal, NewMetricsService(), zap.NewNop())

	result, err := svc.Download(context.Background(), "42", NewFileSink(target))
	require.NoError(t, err)
	assert.Equal(t, "content_42.pdf", result.Filename)
	assert.Equal(t, int64(4), result.SizeBytes)
	assert.Equal(t, target.Path("content_42.pdf"), result.Location)

	data, err := os.ReadFile(result.Location)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	spool.assertReleasedOnce(t)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, "42", journal.entries[0].RecordID)

	again, err := svc.Download(context.Background(), "42", NewFileSink(target))
	require.NoError(t, err)
	assert.Equal(t, target.Path("content_42 (1).pdf"), again.Location)
}

func TestDownloadServiceReleasesOnceWhenSinkNoOps(t *testing.T) {
	spool := newCountingSpool(t)
	svc := NewDownloadService(documentSourceStub{filename: "notes.pdf", body: "data"}, spool, nil, nil, nil)

	called := false
	result, err := svc.Download(context.Background(), "9", sinkFunc(func(_ context.Context, filename string, file *os.File, size int64) (string, error) {
		called = true
		assert.Equal(t, "notes.pdf", filename)
		assert.Equal(t, int64(4), size)
		return "", nil
	}))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, result.Location)
	spool.assertReleasedOnce(t)
}

func TestDownloadServiceReleasesOnceWhenSinkFails(t *testing.T) {
	spool := newCountingSpool(t)
	svc := NewDownloadService(documentSourceStub{body: "data"}, spool, nil, nil, nil)

	_, err := svc.Download(context.Background(), "5", sinkFunc(func(context.Context, string, *os.File, int64) (string, error) {
		return "", errors.New("disk full")
	}))
	require.ErrorIs(t, err, appErrors.ErrDownload)
	spool.assertReleasedOnce(t)
}

func TestDownloadServiceReleasesOnceWhenSinkPanics(t *testing.T) {
	spool := newCountingSpool(t)
	svc := NewDownloadService(documentSourceStub{body: "data"}, spool, nil, nil, nil)

	assert.Panics(t, func() {
		_, _ = svc.Download(context.Background(), "5", sinkFunc(func(context.Context, string, *os.File, int64) (string, error) {
			panic("link element vanished")
		}))
	})
	spool.assertReleasedOnce(t)
}

func TestDownloadServiceSinkReadsSpooledBytes(t *testing.T) {
	spool := newCountingSpool(t)
	svc := NewDownloadService(documentSourceStub{body: "0123456789"}, spool, nil, nil, nil)

	var got string
	_, err := svc.Download(context.Background(), "1", sinkFunc(func(_ context.Context, _ string, file *os.File, _ int64) (string, error) {
		data, err := io.ReadAll(file)
		got = string(data)
		return "memory", err
	}))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", got)
}

func TestDownloadServiceSourceError(t *testing.T) {
	spool := newCountingSpool(t)
	svc := NewDownloadService(documentSourceStub{err: appErrors.Clone(appErrors.ErrNetwork, "Contenu non trouvé")}, spool, nil, nil, nil)

	_, err := svc.Download(context.Background(), "404", sinkFunc(func(context.Context, string, *os.File, int64) (string, error) {
		t.Fatal("sink must not run")
		return "", nil
	}))
	require.ErrorIs(t, err, appErrors.ErrNetwork)
	assert.Empty(t, spool.created)
}

func TestDownloadServiceRequiresID(t *testing.T) {
	svc := NewDownloadService(documentSourceStub{}, newCountingSpool(t), nil, nil, nil)
	_, err := svc.Download(context.Background(), "  ", NewFileSink(nil))
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDownloadServiceJournalFailureDoesNotFailDownload(t *testing.T) {
	journal := &journalStub{err: errors.New("db down")}
	svc := NewDownloadService(documentSourceStub{body: "x"}, newCountingSpool(t), journal, nil, nil)

	_, err := svc.Download(context.Background(), "3", sinkFunc(func(context.Context, string, *os.File, int64) (string, error) {
		return "", nil
	}))
	require.NoError(t, err)
}

func TestDownloadServiceJournalListing(t *testing.T) {
	svc := NewDownloadService(documentSourceStub{}, newCountingSpool(t), nil, nil, nil)
	entries, err := svc.Journal(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	journal := &journalStub{entries: []models.JournalEntry{{ID: "a"}, {ID: "b"}}}
	svc = NewDownloadService(documentSourceStub{}, newCountingSpool(t), journal, nil, nil)
	entries, err = svc.Journal(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
