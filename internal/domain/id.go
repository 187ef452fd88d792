package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID: непрозрачный идентификатор, выданный бэкендом.
// Бэкенд отдаёт его то строкой, то числом, поэтому декодируем оба варианта.
type ID string

func (id ID) String() string {
	return string(id)
}

// IsZero сообщает, что идентификатор ещё не назначен сервером.
func (id ID) IsZero() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}
