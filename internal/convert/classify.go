package convert

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// クライアントに返すメッセージ
const (
	MessagePasswordProtected = "Password-protected documents are not supported."
	MessageTimeout           = "Conversion timed out. The input may be too large or complex."
	MessageInterrupted       = "Conversion was interrupted. Please resubmit the document."
	MessageGenericFailure    = "Conversion failed."
	MessageOutputMissing     = "Conversion failed: the converter did not produce an output document."
)

const maxMessageLen = 300

// 空白・引用符・コロンの直後から始まる絶対パス
var absPathPattern = regexp.MustCompile(`(^|[\s"'(=:])(/[^\s"'()]+)`)

// Classify は失敗の原因をクライアント向けの短いメッセージに変換します。
// スタックトレースや内部パスは含めません。
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return MessageInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MessageTimeout
	}

	msg := err.Error()
	var convErr *Error
	if errors.As(err, &convErr) {
		msg = convErr.Message
	}
	return ClassifyMessage(msg)
}

// ClassifyMessage はメッセージ文字列に分類規則を適用します。
func ClassifyMessage(msg string) string {
	switch {
	case strings.Contains(msg, "Password-protected"), strings.Contains(msg, "password-protected"):
		return MessagePasswordProtected
	case strings.Contains(msg, "timeout"):
		return MessageTimeout
	default:
		return sanitizeMessage(msg)
	}
}

// classify は Convert から返すエラーを分類済みの *Error に揃えます。
// 既に分類済みの *Error はそのまま返します。
func classify(err error) *Error {
	code := CodeInternal
	var convErr *Error
	if errors.As(err, &convErr) {
		code = convErr.Code
	}
	message := Classify(err)
	switch message {
	case MessagePasswordProtected:
		code = CodePasswordProtected
	case MessageTimeout:
		code = CodeConversionTimeout
	case MessageInterrupted:
		code = CodeInterrupted
	}
	if convErr != nil {
		if convErr.Code == code && convErr.Message == message {
			return convErr
		}
		return newError(code, message, convErr.Err)
	}
	return newError(code, message, err)
}

func sanitizeMessage(msg string) string {
	var (
		kept    []string
		inTrace bool
	)
	for _, raw := range strings.Split(msg, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.Index(line, "Traceback (most recent call last)"); i >= 0 {
			inTrace = true
			if head := strings.TrimSpace(line[:i]); head != "" {
				kept = append(kept, stripPaths(head))
			}
			continue
		}
		if strings.HasPrefix(line, "goroutine ") {
			inTrace = true
			continue
		}
		if inTrace && (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) {
			continue
		}
		inTrace = false
		if line == "" || strings.HasPrefix(line, "at ") {
			continue
		}
		kept = append(kept, stripPaths(line))
	}

	out := strings.Join(kept, " ")
	if out == "" {
		return MessageGenericFailure
	}
	return truncate(out, maxMessageLen)
}

func stripPaths(s string) string {
	return absPathPattern.ReplaceAllStringFunc(s, func(m string) string {
		prefix := ""
		if m[0] != '/' {
			prefix, m = m[:1], m[1:]
		}
		return prefix + filepath.Base(m)
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
