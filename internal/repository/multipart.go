package repository

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"quotefiles/internal/domain"
)

// ProgressFunc получает число отправленных байт файлов и их общий размер
type ProgressFunc func(sent, total int64)

// progressReader считает прочитанные байты и сообщает о них reporter
type progressReader struct {
	reader   io.Reader
	reporter func(n int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.reporter(int64(n))
	}
	return
}

func newProgressReader(reader io.Reader, reporter func(n int64)) *progressReader {
	return &progressReader{
		reader:   reader,
		reporter: reporter,
	}
}

// multipartBody собирает тело multipart/form-data потоково через io.Pipe.
// Прогресс считается по мере того, как транспорт вычитывает тело.
func multipartBody(field string, payloads []domain.Payload, fields map[string]string, progress ProgressFunc) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	var total int64
	for _, p := range payloads {
		total += p.Size
	}

	var (
		mu   sync.Mutex
		sent int64
	)
	report := func(n int64) {
		if progress == nil {
			return
		}
		mu.Lock()
		sent += n
		current := sent
		mu.Unlock()
		progress(current, total)
	}

	go func() {
		err := writeMultipart(mw, field, payloads, fields, report)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeMultipart(mw *multipart.Writer, field string, payloads []domain.Payload, fields map[string]string, report func(int64)) error {
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	for _, p := range payloads {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(field), escapeQuotes(p.Name)))
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create part for %s: %w", p.Name, err)
		}

		src, err := p.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p.Name, err)
		}
		_, err = io.Copy(part, newProgressReader(src, report))
		src.Close()
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", p.Name, err)
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
