package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ключи конвертов, в которые бэкенд заворачивает данные
var (
	listEnvelopeKeys   = []string{"files", "data", "items", "versions", "shares"}
	recordEnvelopeKeys = []string{"data", "file", "share", "version"}
)

// decodeList приводит ответ к плоскому срезу.
// Поддерживаются: голый массив, {files:[...]}, {data:[...]} и вложенный {data:{files:[...]}}.
// Пустое тело и null дают пустой срез.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}

	switch data[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return items, nil
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode list envelope: %w", err)
		}
		for _, key := range listEnvelopeKeys {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			return decodeList[T](raw)
		}
		return nil, fmt.Errorf("unexpected list envelope: no known key in response")
	default:
		return nil, fmt.Errorf("unexpected list response")
	}
}

// decodeOne достаёт одиночную запись: голый объект, {data:{...}} или {file:{...}}.
// Объект со своим id уже запись, его вложенные объекты не разворачиваются.
func decodeOne[T any](data []byte) (*T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("unexpected record response")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if _, hasID := envelope["id"]; !hasID {
		for _, key := range recordEnvelopeKeys {
			raw := bytes.TrimSpace(envelope[key])
			if len(raw) > 0 && raw[0] == '{' {
				return decodeOne[T](raw)
			}
		}
	}

	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &record, nil
}
