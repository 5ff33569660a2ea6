package httputil

import (
	"encoding/json"
	"strings"
)

// OptionalID is a PATCH field naming a destination node (RFC 7396 semantics).
// An absent field leaves the node where it is; null or "" moves it to the
// root; any other string moves it under that folder.
type OptionalID struct {
	Present bool
	Value   *string
}

// MoveTo returns a present OptionalID pointing at folderID
func MoveTo(folderID string) OptionalID {
	return OptionalID{Present: true, Value: &folderID}
}

// MoveToRoot returns a present OptionalID pointing at the root
func MoveToRoot() OptionalID {
	return OptionalID{Present: true}
}

// UnmarshalJSON only runs when the key is in the payload, which is what marks
// the field present.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	var v *string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Present = true
	o.Value = nil
	if v != nil {
		id := strings.TrimSpace(*v)
		o.Value = &id
	}
	return nil
}

// Target returns the destination folder id, nil for the root
func (o OptionalID) Target() *string {
	if o.Value == nil || *o.Value == "" {
		return nil
	}
	return o.Value
}
