package scene

import (
	"errors"
	"fmt"

	"github.com/l1jgo/scenecore/internal/core/object"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrStructural marks programmer errors that would corrupt the graph.
	// They are raised as panics, never returned.
	ErrStructural        = errors.New("scene: structural misuse")
	ErrUnknownComponent  = errors.New("scene: unknown component type")
	ErrNotSceneComponent = errors.New("scene: root component must embed SceneComponent")
	ErrWorldNotFound     = errors.New("scene: world not found")
	ErrDefaultWorld      = errors.New("scene: the default world cannot be destroyed")
	ErrNoCapability      = errors.New("scene: processor implements no processor interface")
)

// ComponentError attributes a collaborator failure to one component of an
// activation batch. Unattributed errors fail the whole batch.
type ComponentError struct {
	ComponentUid object.Uid
	Err          error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %v", e.ComponentUid, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// failedSet resolves err against a batch: attributed failures mark their
// component, anything else marks every component of the batch.
func failedSet(err error, batch []Component, into map[Component]struct{}) {
	for _, e := range multierr.Errors(err) {
		var ce *ComponentError
		if !errors.As(e, &ce) {
			for _, c := range batch {
				into[c] = struct{}{}
			}
			continue
		}
		for _, c := range batch {
			if c.Uid() == ce.ComponentUid {
				into[c] = struct{}{}
			}
		}
	}
}

func (m *Manager) fatalf(format string, args ...any) {
	err := fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
	m.log.Error("場景結構錯誤", zap.Error(err))
	panic(err)
}
