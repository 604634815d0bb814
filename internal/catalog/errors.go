package catalog

import "errors"

var (
	// ErrNotFound indicates the addressed material or request does not exist,
	// e.g. it was deleted by a concurrent admin action.
	ErrNotFound = errors.New("catalog: not found")

	// ErrStorageConflict indicates an insert collided on the storage path.
	// Path collisions are resolved by the flow before insert, so hitting this
	// means two uploads raced for the same final path.
	ErrStorageConflict = errors.New("catalog: storage path conflict")
)
