package staging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateSequentialNames(t *testing.T) {
	a, err := NewAllocator(filepath.Join(t.TempDir(), "runs", "detect"))
	require.NoError(t, err)

	var names []string
	for i := 0; i < 3; i++ {
		b, err := a.Allocate()
		require.NoError(t, err)
		assert.DirExists(t, b.Dir)
		names = append(names, b.Name)
	}

	assert.Equal(t, []string{"exp", "exp1", "exp2"}, names)
}

func TestAllocateSkipsExistingDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "exp"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "exp1"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "exp3"), 0o755))

	a, err := NewAllocator(root)
	require.NoError(t, err)

	b, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "exp2", b.Name)

	b, err = a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "exp4", b.Name)
}

func TestAllocateConcurrentUnique(t *testing.T) {
	root := t.TempDir()
	a1, err := NewAllocator(root)
	require.NoError(t, err)
	a2, err := NewAllocator(root)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		a := a1
		if i%2 == 1 {
			a = a2
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := a.Allocate()
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[b.Name], "duplicate batch %s", b.Name)
			seen[b.Name] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
}

func TestBatchLabels(t *testing.T) {
	a, err := NewAllocator(t.TempDir())
	require.NoError(t, err)
	b, err := a.Allocate()
	require.NoError(t, err)

	img := "37.1000,127.0000.jpg"
	assert.Equal(t, filepath.Join(b.Dir, img), b.ImagePath(img))
	assert.False(t, b.HasLabel(img))

	require.NoError(t, os.MkdirAll(b.LabelsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.LabelsDir(), "37.1000,127.0000.txt"), []byte("0 0.5 0.5 0.2 0.2 0.91\n"), 0o644))
	assert.True(t, b.HasLabel(img))
}
