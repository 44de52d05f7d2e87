package event

import "github.com/l1jgo/scenecore/internal/core/object"

// Scene listener notifications. Uids only: by delivery time the objects may
// already be gone.

type SceneActivated struct {
	SceneUid object.Uid
	WorldUid object.Uid
	Name     string
}

type SceneDeactivated struct {
	SceneUid object.Uid
	WorldUid object.Uid
	Name     string
}

// ObjectsActivated is emitted once an activation batch finished for a subtree.
type ObjectsActivated struct {
	WorldUid object.Uid
	Objects  []object.Uid
}

type ComponentsActivated struct {
	WorldUid   object.Uid
	Components []object.Uid
}

// ObjectsDeleting is emitted when objects are removed, before their components
// are torn down.
type ObjectsDeleting struct {
	Objects []object.Uid
}

type ComponentsDeleting struct {
	Components []object.Uid
}

// ComponentsChanged batches components marked dirty (transform edits) during one update.
type ComponentsChanged struct {
	Components []object.Uid
}

type WorldDestroyed struct {
	WorldUid object.Uid
	Name     string
}
