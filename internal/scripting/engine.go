package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

var ErrUnknownBehavior = errors.New("scripting: unknown behavior")

// Engine wraps a single gopher-lua VM running component behaviors.
// Single-goroutine access only (main loop).
//
// A behavior is a global Lua table whose optional fields on_activate,
// on_update and on_deactivate are called with the component's self table.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Shared helpers first, then behaviors
	for _, sub := range []string{"lib", ""} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts %s: %w", p, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("已載入 Lua 腳本", zap.String("file", path))
	}
	return nil
}

// Reload re-runs one script file. Behavior tables it redefines replace the
// old ones; scripts already active pick up the new hooks on their next call.
func (e *Engine) Reload(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	e.log.Info("已重新載入 Lua 腳本", zap.String("file", path))
	return nil
}

// DoString runs a chunk in the engine's VM.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Behaviors lists the global tables that define at least one hook.
func (e *Engine) Behaviors() []string {
	var names []string
	e.vm.G.Global.ForEach(func(k, v lua.LValue) {
		t, ok := v.(*lua.LTable)
		if !ok || k.Type() != lua.LTString {
			return
		}
		for _, hook := range []string{hookActivate, hookUpdate, hookDeactivate} {
			if t.RawGetString(hook) != lua.LNil {
				names = append(names, k.String())
				return
			}
		}
	})
	sort.Strings(names)
	return names
}

func (e *Engine) behavior(name string) (*lua.LTable, error) {
	t, ok := e.vm.GetGlobal(name).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, name)
	}
	return t, nil
}

// call invokes behavior.hook(self, args...). Missing hooks are not an error.
func (e *Engine) call(b *lua.LTable, hook string, self *lua.LTable, args ...lua.LValue) error {
	fn := b.RawGetString(hook)
	if fn == lua.LNil {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, append([]lua.LValue{self}, args...)...); err != nil {
		return fmt.Errorf("lua %s: %w", hook, err)
	}
	return nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
