package scene

// ActivationState is shared by components, objects and scenes.
type ActivationState uint8

const (
	Inactive ActivationState = iota
	Activating
	Active
	Deactivating
	Destroyed
)

func (s ActivationState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Deactivating:
		return "deactivating"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// live reports Activating or Active.
func (s ActivationState) live() bool { return s == Activating || s == Active }
