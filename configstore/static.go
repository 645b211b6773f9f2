package configstore

import (
	"context"
	"encoding/json"
)

// Static is a fixed in-memory configuration store, used for tests and
// local development.
type Static map[string]json.RawMessage

// Get returns the stored value of the key.
func (s Static) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	value, found := s[key]
	return value, found, nil
}
