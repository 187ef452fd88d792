// domain/file_version.go
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileVersion: одна историческая ревизия файла.
// ID версии отличается от ID файла: скачивание версии идёт по нему.
type FileVersion struct {
	ID            ID        `json:"id"`
	FileID        ID        `json:"file_id,omitempty"`
	VersionNumber int       `json:"version_number,omitempty"`
	Version       int       `json:"version,omitempty"`
	Size          int64     `json:"size,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty"`
}

// StoredNumber возвращает номер, проставленный бэкендом, или 0
func (v *FileVersion) StoredNumber() int {
	if v.VersionNumber > 0 {
		return v.VersionNumber
	}
	return v.Version
}

// VersionEntry: версия вместе с номером для отображения
type VersionEntry struct {
	FileVersion
	Number int `json:"number"`
}

// NumberVersions проставляет номера для отображения.
// Явный номер из бэкенда важнее; иначе номер вычисляется по позиции: total - index.
func NumberVersions(versions []FileVersion) []VersionEntry {
	entries := make([]VersionEntry, 0, len(versions))
	total := len(versions)
	for i, v := range versions {
		number := v.StoredNumber()
		if number <= 0 {
			number = total - i
		}
		entries = append(entries, VersionEntry{FileVersion: v, Number: number})
	}
	return entries
}

// VersionFileName строит имя локального файла, не совпадающее с текущей версией:
// report.pdf, 3 → report_v3.pdf
func VersionFileName(name string, number int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem = DefaultDownloadName
	}
	return fmt.Sprintf("%s_v%d%s", stem, number, ext)
}
