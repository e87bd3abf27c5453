package router

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

type fixture struct {
	router   *Router
	positive string
	negative string
	staging  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		positive: filepath.Join(root, "real"),
		negative: filepath.Join(root, "fake"),
		staging:  filepath.Join(root, "runs", "exp"),
	}
	require.NoError(t, os.MkdirAll(f.staging, 0o755))

	r, err := New(f.positive, f.negative, nil)
	require.NoError(t, err)
	f.router = r
	return f
}

func (f *fixture) stage(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRouteByLabel(t *testing.T) {
	f := newFixture(t)

	pos, err := f.router.Route(f.stage(t, f.staging, "37.1000,127.0000.jpg", "p"), true)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StorePositive, pos.Store)
	assert.Equal(t, filepath.Join(f.positive, "37.1000,127.0000.jpg"), pos.Path)
	assert.NoFileExists(t, filepath.Join(f.negative, "37.1000,127.0000.jpg"))

	neg, err := f.router.Route(f.stage(t, f.staging, "35.0000,129.0000.jpg", "n"), false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StoreNegative, neg.Store)
	assert.FileExists(t, filepath.Join(f.negative, "35.0000,129.0000.jpg"))
	assert.NoFileExists(t, filepath.Join(f.positive, "35.0000,129.0000.jpg"))
}

func TestRouteRemovesStagingCopy(t *testing.T) {
	f := newFixture(t)
	src := f.stage(t, f.staging, "37.1000,127.0000.jpg", "p")

	_, err := f.router.Route(src, true)
	require.NoError(t, err)
	assert.NoFileExists(t, src)
}

func TestRouteCollisionSafeNaming(t *testing.T) {
	f := newFixture(t)
	existing := f.stage(t, f.positive, "37.1000,127.0000.jpg", "original")

	first, err := f.router.Route(f.stage(t, f.staging, "37.1000,127.0000.jpg", "second"), true)
	require.NoError(t, err)
	assert.Equal(t, "37.1000,127.0000,1.jpg", first.Name)

	second, err := f.router.Route(f.stage(t, f.staging, "37.1000,127.0000.jpg", "third"), true)
	require.NoError(t, err)
	assert.Equal(t, "37.1000,127.0000,2.jpg", second.Name)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	data, err = os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "third", string(data))
}

func TestRouteNormalizesExtension(t *testing.T) {
	f := newFixture(t)

	img, err := f.router.Route(f.stage(t, f.staging, "1.0,2.0.JPEG", "x"), false)
	require.NoError(t, err)
	assert.Equal(t, "1.0,2.0.jpg", img.Name)
}

func TestRouteConcurrentSameStem(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	names := make([]string, 8)
	for i := range names {
		dir := filepath.Join(f.staging, fmt.Sprintf("b%d", i))
		src := f.stage(t, dir, "37.1000,127.0000.jpg", fmt.Sprintf("img-%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img, err := f.router.Route(src, true)
			if assert.NoError(t, err) {
				names[i] = img.Name
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate archive name %s", n)
		seen[n] = true
	}
	entries, err := os.ReadDir(f.positive)
	require.NoError(t, err)
	assert.Len(t, entries, len(names))
}

func TestRouteFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Route(filepath.Join(f.staging, "missing.jpg"), true)
	assert.ErrorIs(t, err, pipeline.ErrRouteFailure)

	require.NoError(t, os.RemoveAll(f.negative))
	require.NoError(t, os.WriteFile(f.negative, []byte("not a dir"), 0o644))
	src := f.stage(t, f.staging, "1.0,2.0.jpg", "x")
	_, err = f.router.Route(src, false)
	assert.ErrorIs(t, err, pipeline.ErrRouteFailure)
	assert.FileExists(t, src)
}

func TestCopyExclusive(t *testing.T) {
	f := newFixture(t)
	src := f.stage(t, f.staging, "a.jpg", "payload")
	dst := filepath.Join(f.positive, "a.jpg")

	require.NoError(t, copyExclusive(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	src = f.stage(t, f.staging, "a.jpg", "again")
	assert.ErrorIs(t, copyExclusive(src, dst), errNameTaken)
	assert.FileExists(t, src)
}
