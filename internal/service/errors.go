package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrTooManyFiles     = errors.New("too many files selected")
	ErrNotConfirmed     = errors.New("action was not confirmed")
	ErrNotPreviewable   = errors.New("file type cannot be previewed")
	ErrUnknownTask      = errors.New("unknown upload task")
	ErrTaskNotFailed    = errors.New("upload task has not failed")
	ErrFileNotInCatalog = errors.New("file is not in catalog")
	ErrUnknownAction    = errors.New("unknown file action")
	ErrUnknownGrant     = errors.New("unknown share grant")
	ErrUnknownVersion   = errors.New("unknown file version")
)

// ValidationError: ошибка проверки входных данных до обращения к сети.
// Fields: имя поля (как в JSON) → сообщение для пользователя.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
