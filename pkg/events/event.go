package events

import (
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// UpdateType classifies a resource change observed on a watch stream.
type UpdateType string

const (
	// Added means the resource appeared on the watch stream.
	Added UpdateType = "ADDED"

	// Modified means the resource was updated.
	Modified UpdateType = "MODIFIED"

	// Deleted means the resource was removed.
	Deleted UpdateType = "DELETED"
)

// ResourceEvent is one resource change, published on the bus under the
// watched resource type's label. Events are fire-and-forget: they are
// not retained after fan-out and there is no replay.
type ResourceEvent struct {
	// Label is the bus topic, i.e. the watched resource type's label.
	Label string

	// Type is the change kind.
	Type UpdateType

	// Object is the decoded resource payload.
	Object *unstructured.Unstructured

	// ObservedAt is when the watcher saw the change.
	ObservedAt time.Time
}
