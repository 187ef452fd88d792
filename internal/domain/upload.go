package domain

import "time"

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadError     UploadStatus = "error"
)

// ItemError: ошибка по отдельному файлу пакетной загрузки
type ItemError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadTask: одна загрузка в процессе (не путать с File).
// Пакетная задача всегда содержит не меньше двух payload, одиночная ровно один.
type UploadTask struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	Batch      bool         `json:"batch"`
	Files      []string     `json:"files"`
	Progress   int          `json:"progress"`
	Status     UploadStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	ItemErrors []ItemError  `json:"item_errors,omitempty"`
	Scope      Scope        `json:"scope"`
	CreatedAt  time.Time    `json:"created_at"`

	Payloads []Payload `json:"-"`
}

// TotalSize: суммарный размер всех payload задачи
func (t *UploadTask) TotalSize() int64 {
	var total int64
	for _, p := range t.Payloads {
		total += p.Size
	}
	return total
}

// Snapshot возвращает копию задачи без общих срезов
func (t *UploadTask) Snapshot() UploadTask {
	c := *t
	c.Files = append([]string(nil), t.Files...)
	c.ItemErrors = append([]ItemError(nil), t.ItemErrors...)
	c.Payloads = nil
	return c
}
