package convert

import (
	"bytes"
	"fmt"
	"os"
	"errors"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

func init() {
	// サーバーからユーザー設定ディレクトリを作らせない
	pdfapi.DisableConfigDir()
}

// writeInput は入力ファイルを作業ディレクトリに書き出し、変換対象のページ数を返します。
// ページ指定がある場合は該当ページだけを抜き出した PDF を書き出します。
func writeInput(path string, doc Document) (int, error) {
	data := doc.Data
	if selection := doc.pageSelection(); len(selection) > 0 {
		var buf bytes.Buffer
		if err := pdfapi.Collect(bytes.NewReader(doc.Data), &buf, selection, nil); err != nil {
			if isPasswordError(err) {
				return 0, newError(CodePasswordProtected, "error: Password-protected PDF is not supported.", err)
			}
			return 0, newError(CodeUnsupportedPDF, fmt.Sprintf("Failed to extract pages %s from the document.", doc.Pages), err)
		}
		data = buf.Bytes()
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return 0, fmt.Errorf("failed to write input file: %w", err)
	}
	return countPages(data), nil
}

// countPages は PDF のページ数を返します。暗号化などで読めない場合は仮の値を返します。
func countPages(data []byte) int {
	n, err := pdfapi.PageCount(bytes.NewReader(data), nil)
	if err != nil || n <= 0 {
		return placeholderPageCount
	}
	return n
}

func isPasswordError(err error) bool {
	if errors.Is(err, pdfcpu.ErrWrongPassword) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
