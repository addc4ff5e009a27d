package convert

// 変換ジョブの失敗を表すエラーコード
const (
	CodeWorkspaceUnavailable = "WORKSPACE_UNAVAILABLE"
	CodeConversionFailed     = "CONVERSION_FAILED"
	CodeConversionTimeout    = "CONVERSION_TIMEOUT"
	CodeOutputMissing        = "OUTPUT_MISSING"
	CodePasswordProtected    = "PASSWORD_PROTECTED"
	CodeUnsupportedPDF       = "UNSUPPORTED_PDF"
	CodeInterrupted          = "INTERRUPTED"
	CodeInternal             = "INTERNAL_ERROR"
)

// Error はクライアントに返してよいメッセージを持つ変換エラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
