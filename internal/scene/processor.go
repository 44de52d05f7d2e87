package scene

import (
	"context"
	"fmt"

	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
)

// ComponentsActivator is told synchronously about components entering and
// leaving the active set of a world. Batches contain components of every type;
// processors filter for the ones they handle.
type ComponentsActivator interface {
	// ActivateComponents may fail individual components by returning
	// *ComponentError values (combined with multierr).
	ActivateComponents(world object.Uid, comps []Component) error
	DeactivateComponents(world object.Uid, comps []DeactivatedComponent)
}

// ComponentsAsyncActivator participates in activation with async work. The
// barrier completes once every async activator registered before this one
// finished the same batch.
type ComponentsAsyncActivator interface {
	ActivateComponentsAsync(world object.Uid, comps []Component, barrier async.Awaitable) async.Awaitable
	DeactivateComponentsAsync(world object.Uid, comps []DeactivatedComponent) async.Awaitable
}

// SceneStateSyncer runs once per tick after component updates.
type SceneStateSyncer interface {
	SyncSceneState() error
}

type PreInitializer interface {
	PreInit(ctx context.Context) error
}

// DeactivatedComponent identifies a component whose references are already
// invalid. Component is still usable for reading collaborator-owned state.
type DeactivatedComponent struct {
	Component    Component
	ComponentUid object.Uid
	ObjectUid    object.Uid
	SceneUid     object.Uid
	WorldUid     object.Uid
}

func deactivated(c Component) DeactivatedComponent {
	d := DeactivatedComponent{Component: c, ComponentUid: c.Uid()}
	if o := c.Object(); o != nil {
		d.ObjectUid = o.uid
		if o.scene != nil {
			d.SceneUid = o.scene.uid
			if o.scene.world != nil {
				d.WorldUid = o.scene.world.uid
			}
		}
	}
	return d
}

// Named processors report a stable name in logs.
type Named interface {
	Name() string
}

func processorName(p any) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
