package annotation

import "errors"

var (
	// ErrDuplicateID is returned when an id is already registered or was
	// registered earlier in the document's lifetime.
	ErrDuplicateID = errors.New("annotation id already exists")
	ErrNotFound    = errors.New("annotation not found")
	// ErrStaleAnnotation means the anchored text no longer matches the
	// buffer. Callers should request fresh suggestions.
	ErrStaleAnnotation   = errors.New("annotation is stale")
	ErrInvalidRange      = errors.New("invalid range")
	ErrInvalidAnnotation = errors.New("invalid annotation")
	ErrNotApplicable     = errors.New("operation not applicable to annotation variant")
)
