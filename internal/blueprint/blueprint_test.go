package blueprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// beacon is a small component with decodable properties.
type beacon struct {
	scene.BaseComponent
	Color string
	Range float64
	Delay time.Duration
}

const level = `
name: level_1
objects:
  - name: ground
    transform:
      translation: [0, -1, 0]
      scale: [10, 1, 1]
  - name: tower
    transform:
      translation: [3, 0, 0]
      rotation_z: 1.5707963267948966
    components:
      - type: blueprint.beacon
        properties:
          color: red
          range: 12.5
          delay: 250ms
    children:
      - name: lamp
        transform:
          translation: [0, 2, 0]
        components:
          - type: blueprint.beacon
`

func newManager(t *testing.T) *scene.Manager {
	t.Helper()
	sched, err := async.NewScheduler(zaptest.NewLogger(t), 0)
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	f := scene.NewFactory()
	require.NoError(t, scene.Register(f, func() *beacon { return &beacon{} }))
	return scene.NewManager(zaptest.NewLogger(t), sched, f)
}

func TestParseValidates(t *testing.T) {
	bp, err := Parse([]byte(level))
	require.NoError(t, err)
	assert.Equal(t, "level_1", bp.Name)
	require.Len(t, bp.Objects, 2)
	assert.Equal(t, "lamp", bp.Objects[1].Children[0].Name)

	_, err = Parse([]byte("objects: []"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("name: x\nobjects:\n  - transform: {}\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("name: x\nobjects:\n  - name: a\n    components:\n      - properties: {}\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("name: [unterminated"))
	assert.Error(t, err)
}

func TestBuildCreatesInactiveScene(t *testing.T) {
	m := newManager(t)
	bp, err := Parse([]byte(level))
	require.NoError(t, err)

	sp, err := Build(m, bp)
	require.NoError(t, err)
	s := sp.Get()
	assert.Equal(t, scene.Inactive, s.ActivationState())

	objs := s.Root().ChildObjects(true)
	require.Len(t, objs, 3)
	tower := objs[1]
	assert.Equal(t, "tower", tower.Name())
	b, ok := scene.FindComponent[*beacon](tower, false)
	require.True(t, ok)
	assert.Equal(t, "red", b.Color)
	assert.Equal(t, 12.5, b.Range)
	assert.Equal(t, 250*time.Millisecond, b.Delay)

	lamp := objs[2]
	assert.InDelta(t, 1.0, lamp.WorldTransform().Translation[0], 1e-9, "child placed under the rotated tower")
	assert.InDelta(t, 0.0, lamp.WorldTransform().Translation[1], 1e-9)
	assert.Equal(t, mgl64.Vec3{10, 1, 1}, objs[0].Scale())
}

func TestBuildLeavesNothingOnError(t *testing.T) {
	m := newManager(t)
	live := m.Registry().Len()
	bp, err := Parse([]byte("name: broken\nobjects:\n  - name: a\n  - name: b\n    components:\n      - type: blueprint.missing\n"))
	require.NoError(t, err)
	_, err = Build(m, bp)
	require.ErrorIs(t, err, scene.ErrUnknownComponent)
	assert.Equal(t, live, m.Registry().Len())

	bp, err = Parse([]byte("name: typed\nobjects:\n  - name: a\n    components:\n      - type: blueprint.beacon\n        properties: {range: far}\n"))
	require.NoError(t, err)
	_, err = Build(m, bp)
	assert.ErrorIs(t, err, ErrInvalid)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStageSwapsScenes(t *testing.T) {
	m := newManager(t)
	stage := NewStage(zaptest.NewLogger(t), m)
	path := filepath.Join(t.TempDir(), "level.yaml")
	writeFile(t, path, level)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := stage.Load(path)
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx, task))
	first, ok := stage.Scene(path)
	require.True(t, ok)
	assert.True(t, first.IsActive())

	writeFile(t, path, "name: [broken")
	_, err = stage.Load(path)
	require.Error(t, err)
	still, ok := stage.Scene(path)
	require.True(t, ok, "a bad reload keeps the running scene")
	assert.Same(t, first, still)

	writeFile(t, path, "name: level_2\nworld: arena\nobjects:\n  - name: only\n")
	task, err = stage.Load(path)
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx, task))
	second, ok := stage.Scene(path)
	require.True(t, ok)
	assert.Equal(t, "level_2", second.Name())
	assert.Equal(t, "arena", second.World().Name())
	assert.False(t, first.Alive())

	stage.Unload(path)
	assert.False(t, second.Alive())
	_, ok = stage.Scene(path)
	assert.False(t, ok)
}

func TestFilesListsBlueprints(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.yaml", "a.yml", "c.lua", "notes.txt"} {
		writeFile(t, filepath.Join(dir, n), "name: x\n")
	}
	files, err := Files(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "level.yaml")
	writeFile(t, path, level)
	writeFile(t, filepath.Join(dir, "ignored.txt"), "x")

	select {
	case got := <-w.Events:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no watcher event")
	}

	require.NoError(t, w.Close())
	for range w.Events {
	}
	assert.NoError(t, w.Close(), "closing twice is harmless")
}
