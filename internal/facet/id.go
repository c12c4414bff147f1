package facet

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an identifier a backend may send as a JSON string or number. It is
// always handled as its string form.
type ID string

// UnmarshalJSON accepts a string, a number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number, got %s", data)
	}
	*id = ID(n.String())
	return nil
}

// UnmarshalJSON decodes a theme whose id may be numeric.
func (t *Theme) UnmarshalJSON(data []byte) error {
	type plain Theme
	aux := struct {
		*plain
		ID ID `json:"id"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.ID = string(aux.ID)
	return nil
}
