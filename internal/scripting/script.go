package scripting

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/scene"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const (
	hookActivate   = "on_activate"
	hookUpdate     = "on_update"
	hookDeactivate = "on_deactivate"
)

// Script drives its object from a Lua behavior.
type Script struct {
	scene.BaseComponent

	Behavior string

	engine *Engine
	table  *lua.LTable
	self   *lua.LTable
}

// RegisterComponents adds Script to f; every Script runs on e.
func RegisterComponents(f *scene.Factory, e *Engine) error {
	return scene.Register(f, func() *Script { return &Script{engine: e} })
}

func (s *Script) ActivateComponent() error {
	b, err := s.engine.behavior(s.Behavior)
	if err != nil {
		return err
	}
	s.table = b
	s.self = s.newSelf()
	return s.engine.call(b, hookActivate, s.self)
}

func (s *Script) UpdateComponent(dt time.Duration) {
	if !s.refresh() {
		return
	}
	if err := s.engine.call(s.table, hookUpdate, s.self, lua.LNumber(dt.Seconds())); err != nil {
		s.Logger().Error("腳本更新失敗", zap.String("behavior", s.Behavior), zap.Error(err))
	}
}

func (s *Script) DeactivateComponent() {
	if !s.refresh() {
		return
	}
	if err := s.engine.call(s.table, hookDeactivate, s.self); err != nil {
		s.Logger().Error("腳本停用失敗", zap.String("behavior", s.Behavior), zap.Error(err))
	}
	s.table, s.self = nil, nil
}

// refresh follows a reloaded behavior table. A behavior removed by a reload
// keeps running its last table.
func (s *Script) refresh() bool {
	if s.table == nil {
		return false
	}
	if b, err := s.engine.behavior(s.Behavior); err == nil {
		s.table = b
	}
	return true
}

// Self is the table handed to every hook; scripts keep their state in it.
func (s *Script) Self() *lua.LTable { return s.self }

func (s *Script) newSelf() *lua.LTable {
	L := s.engine.vm
	self := L.NewTable()
	self.RawSetString("name", lua.LString(s.Object().Name()))
	self.RawSetString("uid", lua.LString(s.Object().Uid().String()))
	self.RawSetString("translate", L.NewFunction(func(L *lua.LState) int {
		d := mgl64.Vec3{float64(L.CheckNumber(2)), float64(L.OptNumber(3, 0)), float64(L.OptNumber(4, 0))}
		obj := s.Object()
		obj.SetTranslation(obj.Translation().Add(d))
		return 0
	}))
	self.RawSetString("position", L.NewFunction(func(L *lua.LState) int {
		p := s.Object().Translation()
		L.Push(lua.LNumber(p[0]))
		L.Push(lua.LNumber(p[1]))
		L.Push(lua.LNumber(p[2]))
		return 3
	}))
	return self
}
