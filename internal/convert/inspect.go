package convert

import (
	"bytes"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Info はアップロードされた PDF の基本情報です。
type Info struct {
	PageCount        int    `json:"pageCount"`
	Encrypted        bool   `json:"encrypted"`
	Version          string `json:"version,omitempty"`
	Title            string `json:"title,omitempty"`
	Author           string `json:"author,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Creator          string `json:"creator,omitempty"`
	Producer         string `json:"producer,omitempty"`
	CreationDate     string `json:"creationDate,omitempty"`
	ModificationDate string `json:"modificationDate,omitempty"`
}

// Inspect はページ数・暗号化の有無・文書情報を返します。
// パスワードがないと開けない PDF は Encrypted だけを立てて返します。
func Inspect(data []byte) (*Info, error) {
	info, err := pdfapi.PDFInfo(bytes.NewReader(data), "", nil, nil)
	if err != nil {
		if isPasswordError(err) {
			return &Info{Encrypted: true}, nil
		}
		return nil, newError(CodeUnsupportedPDF, "The document could not be read as a PDF.", err)
	}

	return &Info{
		PageCount:        info.PageCount,
		Encrypted:        info.Encrypted,
		Version:          info.Version,
		Title:            info.Title,
		Author:           info.Author,
		Subject:          info.Subject,
		Creator:          info.Creator,
		Producer:         info.Producer,
		CreationDate:     info.CreationDate,
		ModificationDate: info.ModificationDate,
	}, nil
}
