package engine

import (
	"encoding/json"
	"errors"
)

// Decode converts a stored value into T.
// Values written in-process come back as T; values loaded from disk or SQLite
// arrive as JSON and are unmarshaled.
func Decode[T any](val any) (T, error) {
	var target T
	switch v := val.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return target, errors.New("engine: nil record")
		}
		return *v, nil
	case json.RawMessage:
		err := json.Unmarshal(v, &target)
		return target, err
	case []byte:
		err := json.Unmarshal(v, &target)
		return target, err
	}

	bytes, err := json.Marshal(val)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}

// Load reads and decodes one record. found is false when the record does not exist.
func Load[T any](tx Tx, kind Kind, id string) (rec T, found bool, err error) {
	val, err := tx.Get(kind, id)
	if errors.Is(err, ErrRecordNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	rec, err = Decode[T](val)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}
