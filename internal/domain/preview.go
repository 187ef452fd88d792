package domain

// Blob: загруженное двоичное содержимое файла
type Blob struct {
	Data        []byte
	ContentType string
}

// Reference: живая ссылка на Blob (object URL).
// Каждая созданная ссылка должна быть освобождена ровно один раз.
type Reference struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
