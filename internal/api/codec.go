package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

	// UploadField is the multipart field that carries the file content.
	UploadField = "upload"
)

// File is a binary payload submitted as a multipart upload.
type File struct {
	Name   string
	Reader io.Reader
}

// EncodeArgs serializes args as k1=v1&k2=v2 in insertion order with keys and
// values percent-encoded. The same encoding is used for GET query strings and
// form bodies.
func EncodeArgs(args *Args) string {
	var b strings.Builder
	for i, p := range args.Pairs() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// payload is an encoded request: the final URL plus an optional body. Form
// bodies are held in body. Multipart bodies stream from stream, and length is
// -1 when the file size cannot be determined up front.
type payload struct {
	url         string
	body        []byte
	stream      io.Reader
	length      int64
	contentType string
}

// encodeRequest places args according to verb. GET appends a query string,
// other verbs send a form body, and a file turns the body into multipart.
func encodeRequest(verb, target string, args *Args, file *File) (payload, error) {
	if file != nil && verb == http.MethodGet {
		return payload{}, &InvalidUsageError{Verb: verb, Reason: "file uploads are not allowed on GET"}
	}

	if verb == http.MethodGet {
		if q := EncodeArgs(args); q != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + q
		}
		return payload{url: target}, nil
	}

	if file != nil {
		body, length, contentType, err := encodeMultipart(args, file)
		if err != nil {
			return payload{}, err
		}
		return payload{url: target, stream: body, length: length, contentType: contentType}, nil
	}

	return payload{url: target, body: []byte(EncodeArgs(args)), contentType: formContentType}, nil
}

// encodeMultipart renders every argument as a form field followed by the file
// part header, then streams the file content between that prefix and the
// closing boundary. The file is never read into memory. The returned content
// type carries the boundary.
func encodeMultipart(args *Args, file *File) (io.Reader, int64, string, error) {
	if file.Reader == nil {
		return nil, 0, "", &InvalidUsageError{Reason: "file payload has no content"}
	}

	head := &bytes.Buffer{}
	writer := multipart.NewWriter(head)

	for _, p := range args.Pairs() {
		if err := writer.WriteField(p.Key, p.Value); err != nil {
			return nil, 0, "", fmt.Errorf("failed to write field %s: %w", p.Key, err)
		}
	}

	name := file.Name
	if name == "" {
		name = "upload"
	}
	if _, err := writer.CreateFormFile(UploadField, name); err != nil {
		return nil, 0, "", fmt.Errorf("failed to create form file %s: %w", name, err)
	}
	prefix := bytes.Clone(head.Bytes())

	head.Reset()
	if err := writer.Close(); err != nil {
		return nil, 0, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	suffix := bytes.Clone(head.Bytes())

	length := int64(-1)
	if size, ok := readerSize(file.Reader); ok {
		length = int64(len(prefix)) + size + int64(len(suffix))
	}
	body := io.MultiReader(bytes.NewReader(prefix), file.Reader, bytes.NewReader(suffix))
	return body, length, writer.FormDataContentType(), nil
}

// readerSize reports how many bytes r will yield when that is knowable
// without reading it: in-memory readers expose Len, and regular files expose
// their size minus the current offset.
func readerSize(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return 0, false
		}
		offset, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		return info.Size() - offset, true
	}
	return 0, false
}
