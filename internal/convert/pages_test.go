package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// buildPDF は指定ページ数の最小構成の PDF を生成します。
func buildPDF(t *testing.T, pages int, title string) []byte {
	t.Helper()
	var (
		buf     bytes.Buffer
		offsets []int
	)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+4)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>", strings.Join(kids, " "), pages))
	writeObj(fmt.Sprintf("<< /Title (%s) /Author (Finance Team) /Producer (unit test) >>", title))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func encryptPDF(t *testing.T, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	conf := model.NewAESConfiguration("user-secret", "owner-secret", 256)
	if err := pdfapi.Encrypt(bytes.NewReader(data), &out, conf); err != nil {
		t.Fatalf("failed to encrypt test pdf: %v", err)
	}
	return out.Bytes()
}

func TestBuildPDFIsReadable(t *testing.T) {
	if got := countPages(buildPDF(t, 5, "Quarterly Report")); got != 5 {
		t.Fatalf("unexpected page count: %d", got)
	}
}

func TestConvertPageSelection(t *testing.T) {
	cases := []struct {
		pages string
		want  int
	}{
		{"2-3", 2},
		{"4-", 2},
		{"1,3,5", 3},
	}
	script := writeScript(t, `cp "$1" "$2" && echo success`)
	for _, tc := range cases {
		t.Run(tc.pages, func(t *testing.T) {
			exec, root := newTestExecutor(t, script, 5*time.Second)
			doc := Document{Filename: "report.pdf", Data: buildPDF(t, 5, "Quarterly Report"), Pages: tc.pages}

			result, err := exec.Convert(context.Background(), "job-pages", doc)
			if err != nil {
				t.Fatalf("Convert returned error: %v", err)
			}
			if result.PageCount != tc.want {
				t.Fatalf("unexpected page count: %d, want %d", result.PageCount, tc.want)
			}
			// コンバーターには抜き出したページだけが渡される
			content, err := result.Content()
			if err != nil {
				t.Fatalf("failed to decode content: %v", err)
			}
			if got := countPages(content); got != tc.want {
				t.Fatalf("converter received %d pages, want %d", got, tc.want)
			}
			assertEmptyDir(t, root)
		})
	}
}

func TestConvertPageSelectionOutOfRange(t *testing.T) {
	script := writeScript(t, `cp "$1" "$2" && echo success`)
	for _, pages := range []string{"9", "7-"} {
		t.Run(pages, func(t *testing.T) {
			exec, root := newTestExecutor(t, script, 5*time.Second)
			doc := Document{Filename: "report.pdf", Data: buildPDF(t, 5, "Quarterly Report"), Pages: pages}

			_, err := exec.Convert(context.Background(), "job-range", doc)
			var convErr *Error
			if !errors.As(err, &convErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if convErr.Code != CodeUnsupportedPDF {
				t.Fatalf("unexpected code: %s", convErr.Code)
			}
			if !strings.Contains(convErr.Message, "Failed to extract pages "+pages) {
				t.Fatalf("unexpected message: %s", convErr.Message)
			}
			if n := strings.Count(convErr.Error(), CodeUnsupportedPDF); n != 1 {
				t.Fatalf("error text repeats the code %d times: %s", n, convErr.Error())
			}
			assertEmptyDir(t, root)
		})
	}
}

func TestConvertPageSelectionPasswordProtected(t *testing.T) {
	script := writeScript(t, `cp "$1" "$2" && echo success`)
	exec, root := newTestExecutor(t, script, 5*time.Second)
	doc := Document{Filename: "locked.pdf", Data: encryptPDF(t, buildPDF(t, 3, "Locked")), Pages: "1-2"}

	_, err := exec.Convert(context.Background(), "job-locked", doc)
	var convErr *Error
	if !errors.As(err, &convErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if convErr.Code != CodePasswordProtected || convErr.Message != MessagePasswordProtected {
		t.Fatalf("unexpected error: %s / %s", convErr.Code, convErr.Message)
	}
	assertEmptyDir(t, root)
}

func TestInspect(t *testing.T) {
	info, err := Inspect(buildPDF(t, 4, "Quarterly Report"))
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.PageCount != 4 {
		t.Fatalf("unexpected page count: %d", info.PageCount)
	}
	if info.Encrypted {
		t.Fatal("document should not be reported as encrypted")
	}
	if info.Title != "Quarterly Report" || info.Author != "Finance Team" {
		t.Fatalf("unexpected metadata: %+v", info)
	}
}

func TestInspectEncrypted(t *testing.T) {
	info, err := Inspect(encryptPDF(t, buildPDF(t, 2, "Locked")))
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if !info.Encrypted {
		t.Fatal("expected encrypted flag")
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect([]byte("%PDF-1.4\nnot really a pdf"))
	var convErr *Error
	if !errors.As(err, &convErr) || convErr.Code != CodeUnsupportedPDF {
		t.Fatalf("expected UNSUPPORTED_PDF error, got %v", err)
	}
}
