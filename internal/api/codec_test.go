package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeArgs(t *testing.T) {
	tests := []struct {
		name string
		args *Args
		want string
	}{
		{"nil", nil, ""},
		{"empty", NewArgs(), ""},
		{"insertion order", NewArgs("b", 2, "a", "x"), "b=2&a=x"},
		{"escaped", NewArgs("q", "a b&c=d", "ä", "ü"), "q=a+b%26c%3Dd&%C3%A4=%C3%BC"},
		{"bool and float", NewArgs("done", true, "n", 1.5), "done=true&n=1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeArgs(tt.args))
		})
	}
}

func TestEncodeRequest_QueryMatchesBody(t *testing.T) {
	argSets := []*Args{
		NewArgs(),
		NewArgs("DLId", "42"),
		NewArgs("title", "Buy milk", "due", "2026-01-01T10:00", "tags", "a,b"),
		NewArgs("weird key", "v/&?#"),
	}
	for _, args := range argSets {
		get, err := encodeRequest(http.MethodGet, testBase+"/tasks", args, nil)
		require.NoError(t, err)
		post, err := encodeRequest(http.MethodPost, testBase+"/tasks", args, nil)
		require.NoError(t, err)

		getURL, err := url.Parse(get.url)
		require.NoError(t, err)
		assert.Equal(t, string(post.body), getURL.RawQuery)
		assert.Nil(t, get.body)
		assert.Equal(t, formContentType, post.contentType)
		assert.Equal(t, testBase+"/tasks", post.url)

		if args.Len() == 0 {
			assert.Equal(t, testBase+"/tasks", get.url, "no trailing ? when empty")
		}
	}
}

func TestEncodeRequest_FileOnGet(t *testing.T) {
	_, err := encodeRequest(http.MethodGet, testBase+"/x", nil, &File{Name: "a.txt", Reader: strings.NewReader("hi")})
	assert.True(t, IsInvalidUsage(err))
}

func TestEncodeRequest_Multipart(t *testing.T) {
	args := NewArgs("DLId", "42", "title", "Report")
	content := strings.NewReader("%PDF-1.7 content")
	p, err := encodeRequest(http.MethodPost, testBase+"/entities/42/upload", args, &File{
		Name:   "report.pdf",
		Reader: content,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p.contentType, "multipart/form-data; boundary="))
	assert.Nil(t, p.body)
	assert.Equal(t, 16, content.Len(), "file is not read while encoding")

	raw, err := io.ReadAll(p.stream)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), p.length)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", p.contentType)
	require.NoError(t, req.ParseMultipartForm(1<<20))

	assert.Equal(t, "42", req.FormValue("DLId"))
	assert.Equal(t, "Report", req.FormValue("title"))

	files := req.MultipartForm.File[UploadField]
	require.Len(t, files, 1)
	assert.Equal(t, "report.pdf", files[0].Filename)
	f, err := files[0].Open()
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 content", string(got))
}

func TestEncodeMultipart_NoReader(t *testing.T) {
	_, _, _, err := encodeMultipart(NewArgs(), &File{Name: "empty"})
	assert.True(t, IsInvalidUsage(err))
}

func TestEncodeMultipart_UnknownSizeStreams(t *testing.T) {
	content := strings.Repeat("x", 4096)
	body, length, contentType, err := encodeMultipart(NewArgs("DLId", "9"), &File{
		Name:   "pipe.bin",
		Reader: iotest.OneByteReader(strings.NewReader(content)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), length)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(1<<20))
	f, _, err := req.FormFile(UploadField)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestEncodeMultipart_RegularFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("klmnopqrst"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)

	body, length, _, err := encodeMultipart(NewArgs(), &File{Name: "notes.txt", Reader: f})
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), length)
	assert.Contains(t, string(raw), "opqrst")
	assert.NotContains(t, string(raw), "klmn")
}
