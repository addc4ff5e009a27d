package convert

import (
	"encoding/base64"
	"strings"
)

const (
	sourceExt = ".pdf"
	targetExt = ".docx"

	// ページ数が取得できない場合に使う値
	placeholderPageCount = 1
)

// Document は投入時に受け取った変換対象です。投入後は変更しません。
type Document struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
	// Pages は変換対象のページ指定（例: "1-3,5,8-"）。空なら全ページ。
	Pages string `json:"pages,omitempty"`
}

// Size はドキュメントのバイト数を返します。
func (d Document) Size() int64 {
	return int64(len(d.Data))
}

// Clone はバイト列を共有しないコピーを返します。
func (d Document) Clone() Document {
	d.Data = append([]byte(nil), d.Data...)
	return d
}

func (d Document) pageSelection() []string {
	if strings.TrimSpace(d.Pages) == "" {
		return nil
	}
	parts := strings.Split(d.Pages, ",")
	selection := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			selection = append(selection, p)
		}
	}
	return selection
}

// Result は変換成功時の成果物とメタデータです。
type Result struct {
	OriginalFilename string `json:"originalFilename"`
	Filename         string `json:"filename"`
	ContentBase64    string `json:"contentBase64"`
	ByteLength       int64  `json:"byteLength"`
	PageCount        int    `json:"pageCount"`
	OCRUsed          bool   `json:"ocrUsed"`
}

// Content は base64 でエンコードされた成果物をデコードして返します。
func (r *Result) Content() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.ContentBase64)
}

// ResultFilename は元のファイル名の拡張子 .pdf（大文字小文字を区別しない）を .docx に一度だけ置き換えます。
func ResultFilename(original string) string {
	if n := len(original) - len(sourceExt); n >= 0 && strings.EqualFold(original[n:], sourceExt) {
		return original[:n] + targetExt
	}
	return original + targetExt
}
