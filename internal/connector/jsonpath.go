// Copyright 2025 James Ross
package connector

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// ExtractField pulls a single field out of a decoded JSON payload using
// JSONPath, for discovery plugins that need e.g. a next-page cursor out of
// an otherwise opaque upstream response shape.
func ExtractField(payload []byte, path string) (interface{}, error) {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("connector: decode payload: %w", err)
	}
	value, err := jsonpath.Get(path, decoded)
	if err != nil {
		return nil, fmt.Errorf("connector: jsonpath %q: %w", path, err)
	}
	return value, nil
}
