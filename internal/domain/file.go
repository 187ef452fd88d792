package domain

import (
	"bytes"
	"io"
	"strings"
	"time"
)

// ContextType: тип владельца набора файлов
type ContextType string

const (
	ContextDealership ContextType = "dealership"
	ContextQuote      ContextType = "quote"
	ContextUser       ContextType = "user"
	ContextGlobal     ContextType = "global"
)

// DefaultDownloadName используется, когда у записи нет ни одного имени
const DefaultDownloadName = "download"

// Scope определяет контекст владения, в рамках которого живёт каталог.
// Оба поля необязательны: пустой Scope означает глобальный список.
type Scope struct {
	Context   ContextType `json:"context,omitempty"`
	ContextID string      `json:"context_id,omitempty"`
}

// Key возвращает ключ для реестра каталогов
func (s Scope) Key() string {
	return string(s.Context) + ":" + s.ContextID
}

// File: запись о файле на стороне бэкенда.
// Бэкенд не договорился об одном поле для имени, поэтому держим все варианты.
type File struct {
	ID           ID                     `json:"id"`
	Name         string                 `json:"name,omitempty"`
	DisplayName  string                 `json:"display_name,omitempty"`
	FileName     string                 `json:"file_name,omitempty"`
	Filename     string                 `json:"filename,omitempty"`
	OriginalName string                 `json:"original_name,omitempty"`
	MIMEType     string                 `json:"mime_type,omitempty"`
	Type         string                 `json:"type,omitempty"`
	Size         int64                  `json:"size,omitempty"`
	OwnerID      string                 `json:"owner_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Context      ContextType            `json:"context,omitempty"`
	ContextID    string                 `json:"context_id,omitempty"`
	VersionCount int                    `json:"version_count,omitempty"`
}

// IsPending: запись без id существует только как незавершённая загрузка
func (f *File) IsPending() bool {
	return f.ID.IsZero()
}

// ResolvedName возвращает первое непустое имя в порядке
// name → display_name → file_name → filename → original_name.
func (f *File) ResolvedName() string {
	for _, name := range []string{f.Name, f.DisplayName, f.FileName, f.Filename, f.OriginalName} {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return DefaultDownloadName
}

// SetName переписывает все поля имени разом, чтобы ResolvedName
// не вернул устаревшее значение из запасного поля.
func (f *File) SetName(name string) {
	f.Name = name
	if f.DisplayName != "" {
		f.DisplayName = name
	}
	if f.FileName != "" {
		f.FileName = name
	}
	if f.Filename != "" {
		f.Filename = name
	}
	if f.OriginalName != "" {
		f.OriginalName = name
	}
}

// ContentType возвращает MIME-тип записи
func (f *File) ContentType() string {
	if f.MIMEType != "" {
		return strings.ToLower(f.MIMEType)
	}
	return strings.ToLower(f.Type)
}

func (f *File) IsImage() bool {
	return strings.HasPrefix(f.ContentType(), "image/")
}

func (f *File) IsPDF() bool {
	return f.ContentType() == "application/pdf"
}

// TypeFilter: фильтр списка по типу
type TypeFilter string

const (
	TypeAll       TypeFilter = "all"
	TypeImages    TypeFilter = "images"
	TypeDocuments TypeFilter = "documents"
)

// Filter: клиентская фильтрация каталога
type Filter struct {
	Search string     `json:"search,omitempty"`
	Type   TypeFilter `json:"type,omitempty"`
}

// Matches проверяет подстроку в имени (без учёта регистра) и фильтр по типу.
// documents: всё, что не является изображением.
func (flt Filter) Matches(f *File) bool {
	if q := strings.TrimSpace(flt.Search); q != "" {
		if !strings.Contains(strings.ToLower(f.ResolvedName()), strings.ToLower(q)) {
			return false
		}
	}

	switch flt.Type {
	case TypeImages:
		return f.IsImage()
	case TypeDocuments:
		return !f.IsImage()
	default:
		return true
	}
}

// Payload: содержимое одного файла, выбранного для загрузки
type Payload struct {
	Name        string
	ContentType string
	Size        int64
	open        func() (io.ReadCloser, error)
}

// NewPayload создаёт payload с произвольным источником данных.
// open вызывается на каждую попытку передачи, поэтому должен быть повторяемым.
func NewPayload(name, contentType string, size int64, open func() (io.ReadCloser, error)) Payload {
	return Payload{Name: name, ContentType: contentType, Size: size, open: open}
}

// BytesPayload создаёт payload из буфера в памяти
func BytesPayload(name, contentType string, data []byte) Payload {
	return NewPayload(name, contentType, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Open открывает данные payload
func (p Payload) Open() (io.ReadCloser, error) {
	if p.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return p.open()
}
