package scripting

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
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"
)

const mover = `
mover = {
  on_activate = function(self)
    self.ticks = 0
    activated = self.name
  end,
  on_update = function(self, dt)
    self.ticks = self.ticks + 1
    self:translate(step(dt), 0, 0)
  end,
  on_deactivate = function(self)
    deactivated_after = self.ticks
  end,
}
`

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return dir
}

func newFixture(t *testing.T, files map[string]string) (*scene.Manager, *Engine) {
	t.Helper()
	e, err := NewEngine(writeScripts(t, files), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	sched, err := async.NewScheduler(zaptest.NewLogger(t), 0)
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	f := scene.NewFactory()
	require.NoError(t, RegisterComponents(f, e))
	return scene.NewManager(zaptest.NewLogger(t), sched, f), e
}

func activate(t *testing.T, m *scene.Manager, behavior string) (*scene.Scene, *Script, error) {
	t.Helper()
	sp := m.NewScene("scripted")
	child := m.NewObject("walker")
	obj := sp.Get().Root().AttachChild(&child)
	s, err := scene.AddComponent(obj, func(s *Script) { s.Behavior = behavior })
	require.NoError(t, err)
	task := m.ActivateScene(&sp, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Wait(ctx, task)
	ref, _ := task.Result()
	sc, _ := ref.Get()
	return sc, s, err
}

func global(e *Engine, name string) lua.LValue { return e.vm.GetGlobal(name) }

func TestEngineLoadsLibBeforeBehaviors(t *testing.T) {
	_, e := newFixture(t, map[string]string{
		"lib/step.lua": `function step(dt) return dt * 2 end`,
		"mover.lua":    mover,
		"notes.txt":    "ignored",
	})
	assert.Equal(t, []string{"mover"}, e.Behaviors())
	assert.Equal(t, lua.LNumber(1), global(e, "API_VERSION"))
}

func TestEngineReportsBadScripts(t *testing.T) {
	_, err := NewEngine(writeScripts(t, map[string]string{"broken.lua": "mover = {"}), zaptest.NewLogger(t))
	assert.Error(t, err)

	e, err := NewEngine(filepath.Join(t.TempDir(), "missing"), zaptest.NewLogger(t))
	require.NoError(t, err, "a missing directory loads nothing")
	defer e.Close()
	assert.Empty(t, e.Behaviors())
}

func TestScriptHooks(t *testing.T) {
	m, e := newFixture(t, map[string]string{
		"lib/step.lua": `function step(dt) return dt * 2 end`,
		"mover.lua":    mover,
	})
	sc, s, err := activate(t, m, "mover")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("walker"), global(e, "activated"))
	assert.Equal(t, lua.LString(s.Object().Uid().String()), s.Self().RawGetString("uid"))

	m.Tick(500 * time.Millisecond)
	m.Tick(500 * time.Millisecond)
	assert.Equal(t, mgl64.Vec3{2, 0, 0}, s.Object().Translation())
	assert.Equal(t, lua.LNumber(2), s.Self().RawGetString("ticks"))

	m.DeactivateScene(sc.Ref())
	assert.Equal(t, lua.LNumber(2), global(e, "deactivated_after"))
	assert.Nil(t, s.Self())
}

func TestUnknownBehaviorFailsActivation(t *testing.T) {
	m, _ := newFixture(t, map[string]string{"mover.lua": mover})
	_, s, err := activate(t, m, "nobody")
	assert.ErrorIs(t, err, ErrUnknownBehavior)
	assert.Equal(t, scene.Activating, s.ActivationState())
}

func TestUpdateErrorsDoNotStopTheScene(t *testing.T) {
	m, e := newFixture(t, map[string]string{
		"faulty.lua": `faulty = { on_update = function(self, dt) error("boom") end }`,
	})
	_, s, err := activate(t, m, "faulty")
	require.NoError(t, err)
	m.Tick(time.Millisecond)
	assert.Equal(t, scene.Active, s.ActivationState())

	require.NoError(t, e.DoString(`faulty.on_update = function(self, dt) self:translate(0, 1) end`))
	m.Tick(time.Millisecond)
	assert.Equal(t, mgl64.Vec3{0, 1, 0}, s.Object().Translation())
}

func TestReloadReplacesActiveBehavior(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"drift.lua": `drift = { on_update = function(self, dt) self:translate(1) end }`,
	})
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	sched, err := async.NewScheduler(zaptest.NewLogger(t), 0)
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	f := scene.NewFactory()
	require.NoError(t, RegisterComponents(f, e))
	m := scene.NewManager(zaptest.NewLogger(t), sched, f)

	_, s, err := activate(t, m, "drift")
	require.NoError(t, err)
	m.Tick(time.Millisecond)
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, s.Object().Translation())

	path := filepath.Join(dir, "drift.lua")
	require.NoError(t, os.WriteFile(path, []byte(`drift = { on_update = function(self, dt) self:translate(0, 0, 5) end }`), 0o644))
	require.NoError(t, e.Reload(path))
	m.Tick(time.Millisecond)
	assert.Equal(t, mgl64.Vec3{1, 0, 5}, s.Object().Translation())

	assert.Error(t, e.Reload(filepath.Join(dir, "gone.lua")))
}
