package botapi

import (
	"encoding/json"
	"fmt"
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const updateIDField = "update_id"

// RawUpdate is one getUpdates entry decoded for routing.
type RawUpdate struct {
	// ID is the update_id.
	ID int64
	// Kinds lists the payload keys present besides update_id, sorted.
	Kinds []string
	// Fields holds the undecoded payload per key.
	Fields map[string]json.RawMessage
	// Update is the typed view of the payload.
	Update tgbotapi.Update
	// DecodeErr is set when the typed view could not be decoded. ID and Fields are
	// still valid so the update can be acknowledged.
	DecodeErr error
}

// Has reports whether the update carries the payload key kind.
func (u RawUpdate) Has(kind string) bool {
	_, ok := u.Fields[kind]
	return ok
}

// DecodeUpdate decodes one update object. Only a missing or malformed update_id
// is an error.
func DecodeUpdate(data []byte) (RawUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawUpdate{}, fmt.Errorf("decode update: %w", err)
	}

	rawID, ok := fields[updateIDField]
	if !ok {
		return RawUpdate{}, fmt.Errorf("decode update: missing %s", updateIDField)
	}
	var id int64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return RawUpdate{}, fmt.Errorf("decode update: %s: %w", updateIDField, err)
	}
	delete(fields, updateIDField)

	kinds := make([]string, 0, len(fields))
	for kind := range fields {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	update := RawUpdate{ID: id, Kinds: kinds, Fields: fields}
	if err := json.Unmarshal(data, &update.Update); err != nil {
		update.DecodeErr = fmt.Errorf("decode update %d: %w", id, err)
	}

	return update, nil
}
