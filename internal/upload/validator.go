// Package upload はアップロードされたドキュメントを受け付ける前に検証します。
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// 検証エラーのコード
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeLimitExceeded = "LIMIT_EXCEEDED"
)

const (
	allowedExt  = ".pdf"
	allowedMIME = "application/pdf"
)

// Error は投入を拒否した理由です。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func invalid(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

// Validator はサイズ・拡張子・シグネチャを検査します。副作用はありません。
type Validator struct {
	maxSize         int64
	verifySignature bool
}

// NewValidator は Validator を作成します。
func NewValidator(maxSize int64, verifySignature bool) *Validator {
	return &Validator{maxSize: maxSize, verifySignature: verifySignature}
}

// MaxSize は1ファイルあたりの上限バイト数を返します。
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// ValidateFile はマルチパートで受け取ったファイルを検証し、変換対象のドキュメントを返します。
// サイズ超過のファイルは読み込む前に拒否します。
func (v *Validator) ValidateFile(file *multipart.FileHeader, pages string) (convert.Document, error) {
	if file == nil {
		return convert.Document{}, invalid("Please upload a file.")
	}
	if err := v.checkName(file.Filename); err != nil {
		return convert.Document{}, err
	}
	if file.Size > v.maxSize {
		return convert.Document{}, v.tooLarge()
	}

	f, err := file.Open()
	if err != nil {
		return convert.Document{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, v.maxSize+1))
	if err != nil {
		return convert.Document{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return v.Validate(file.Filename, data, pages)
}

// Validate はファイル名と内容を検証します。
func (v *Validator) Validate(filename string, data []byte, pages string) (convert.Document, error) {
	if strings.TrimSpace(filename) == "" && data == nil {
		return convert.Document{}, invalid("Please upload a file.")
	}
	if err := v.checkName(filename); err != nil {
		return convert.Document{}, err
	}
	if int64(len(data)) > v.maxSize {
		return convert.Document{}, v.tooLarge()
	}
	if v.verifySignature && !mimetype.Detect(data).Is(allowedMIME) {
		return convert.Document{}, invalid("The uploaded file is not a valid PDF document.")
	}

	ranges, err := ParsePageRanges(pages)
	if err != nil {
		return convert.Document{}, err
	}

	return convert.Document{
		Filename: baseName(filename),
		Data:     data,
		Pages:    FormatPageRanges(ranges),
	}, nil
}

func (v *Validator) checkName(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return invalid("Please upload a file.")
	}
	if !strings.EqualFold(filepath.Ext(baseName(filename)), allowedExt) {
		return invalid("Only PDF files are allowed.")
	}
	return nil
}

func (v *Validator) tooLarge() *Error {
	return &Error{
		Code:    CodeLimitExceeded,
		Message: fmt.Sprintf("File too large. The maximum size is %s.", formatSize(v.maxSize)),
	}
}

// baseName はブラウザが送ってくるパス付きのファイル名からファイル名部分だけを取り出します。
func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	return filepath.Base(name)
}

func formatSize(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// IsLimitExceeded はサイズ超過による拒否かどうかを返します。
func IsLimitExceeded(err error) bool {
	var uerr *Error
	return errors.As(err, &uerr) && uerr.Code == CodeLimitExceeded
}
