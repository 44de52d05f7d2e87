package object

import "github.com/google/uuid"

// Uid identifies worlds, scenes, objects and components across subsystems.
type Uid uuid.UUID

// NullUid is the "no object" sentinel. As a world key it selects the default world.
var NullUid Uid

func NewUid() Uid {
	return Uid(uuid.New())
}

func ParseUid(s string) (Uid, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullUid, err
	}
	return Uid(u), nil
}

func (u Uid) IsNull() bool   { return u == NullUid }
func (u Uid) String() string { return uuid.UUID(u).String() }
