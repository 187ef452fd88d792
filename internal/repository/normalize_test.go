package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotefiles/internal/domain"
)

func TestDecodeList_Shapes(t *testing.T) {
	cases := map[string]string{
		"bare array":     `[{"id":"a"},{"id":"b"}]`,
		"files envelope": `{"files":[{"id":"a"},{"id":"b"}]}`,
		"data envelope":  `{"data":[{"id":"a"},{"id":"b"}]}`,
		"nested":         `{"data":{"files":[{"id":"a"},{"id":"b"}]}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			files, err := decodeList[domain.File]([]byte(body))
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, domain.ID("a"), files[0].ID)
			assert.Equal(t, domain.ID("b"), files[1].ID)
		})
	}
}

func TestDecodeList_EmptyAndNull(t *testing.T) {
	for _, body := range []string{"", "null", "  "} {
		files, err := decodeList[domain.File]([]byte(body))
		require.NoError(t, err)
		assert.Empty(t, files)
	}
}

func TestDecodeList_UnknownEnvelope(t *testing.T) {
	_, err := decodeList[domain.File]([]byte(`{"id":"a"}`))
	assert.Error(t, err)
}

func TestDecodeOne_Shapes(t *testing.T) {
	cases := map[string]string{
		"bare":          `{"id":7,"name":"a.png"}`,
		"data envelope": `{"data":{"id":7,"name":"a.png"}}`,
		"file envelope": `{"file":{"id":7,"name":"a.png"}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			file, err := decodeOne[domain.File]([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, domain.ID("7"), file.ID)
			assert.Equal(t, "a.png", file.Name)
		})
	}
}

func TestDecodeOne_ScalarVersionFieldIsNotEnvelope(t *testing.T) {
	v, err := decodeOne[domain.FileVersion]([]byte(`{"id":"v1","version":3}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ID("v1"), v.ID)
	assert.Equal(t, 3, v.Version)
}

// Версия со встроенным родительским файлом остаётся версией
func TestDecodeOne_RecordWithEmbeddedObjectIsNotEnvelope(t *testing.T) {
	v, err := decodeOne[domain.FileVersion]([]byte(`{"id":"v2","version":4,"file":{"id":"7","name":"a.png"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ID("v2"), v.ID)
	assert.Equal(t, 4, v.Version)

	f, err := decodeOne[domain.File]([]byte(`{"id":"7","name":"a.png","data":{"width":10}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ID("7"), f.ID)
	assert.Equal(t, "a.png", f.Name)

	wrapped, err := decodeOne[domain.File]([]byte(`{"success":true,"data":{"id":"8","name":"b.png"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ID("8"), wrapped.ID)
}
