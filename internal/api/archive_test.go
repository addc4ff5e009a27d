package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

func (s *testServer) completedJob(t *testing.T, filename string, content []byte) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.broker.Enqueue(ctx, convert.Document{Filename: filename, Data: samplePDF})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if _, err := s.broker.Claim(ctx, id); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	err = s.broker.Complete(ctx, id, &convert.Result{
		OriginalFilename: filename,
		Filename:         convert.ResultFilename(filename),
		ContentBase64:    base64.StdEncoding.EncodeToString(content),
		ByteLength:       int64(len(content)),
		PageCount:        1,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	return id
}

func TestArchiveBundlesCompletedJobs(t *testing.T) {
	s := newTestServer(t, 20<<20)
	a := s.completedJob(t, "a.pdf", []byte("first"))
	b := s.completedJob(t, "b.pdf", []byte("second"))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/archive?ids="+a+","+b, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected Content-Type: %s", ct)
	}

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", f.Name, err)
		}
		content, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(content)
	}
	if len(got) != 2 || got["a.docx"] != "first" || got["b.docx"] != "second" {
		t.Fatalf("unexpected archive entries: %v", got)
	}
}

func TestArchiveAcceptsRepeatedIDs(t *testing.T) {
	s := newTestServer(t, 20<<20)
	a := s.completedJob(t, "a.pdf", []byte("first"))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/archive?ids="+a+"&ids="+a, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestArchiveRequiresCompletedJobs(t *testing.T) {
	s := newTestServer(t, 20<<20)
	done := s.completedJob(t, "a.pdf", []byte("first"))
	pending, _ := s.broker.Enqueue(context.Background(), convert.Document{Filename: "b.pdf", Data: samplePDF})

	rec, body := getJSON(t, s, "/api/archive?ids="+done+","+pending)
	if rec.Code != http.StatusNotFound || body["code"] != "JOB_RESULT_NOT_FOUND" || body["jobId"] != pending {
		t.Fatalf("unexpected response: %d %v", rec.Code, body)
	}

	rec, body = getJSON(t, s, "/api/archive?ids="+done+",unknown")
	if rec.Code != http.StatusNotFound || body["code"] != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected response: %d %v", rec.Code, body)
	}
}

func TestArchiveValidatesIDs(t *testing.T) {
	s := newTestServer(t, 20<<20)

	rec, body := getJSON(t, s, "/api/archive")
	if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected response: %d %v", rec.Code, body)
	}

	rec, body = getJSON(t, s, "/api/archive?ids=a,b,c,d")
	if rec.Code != http.StatusRequestEntityTooLarge || body["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected response: %d %v", rec.Code, body)
	}
}
