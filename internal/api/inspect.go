package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
	"github.com/mdabidind/pdf-to-word-activa/internal/upload"
)

// InspectHandler は POST /api/inspect のハンドラーを返します。
// 投入と同じ検証を行い、ページ数や文書情報を返します。ジョブは作りません。
func InspectHandler(validator *upload.Validator) gin.HandlerFunc {
	bodyLimit := validator.MaxSize() + formOverheadBytes

	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondWithError(c, &upload.Error{
					Code:    upload.CodeLimitExceeded,
					Message: "The request is too large.",
				})
				return
			}
			respondWithError(c, &upload.Error{
				Code:    upload.CodeInvalidInput,
				Message: "Please upload a file.",
			})
			return
		}
		defer form.RemoveAll()

		doc, err := validator.ValidateFile(singleFile(form), "")
		if err != nil {
			respondWithError(c, err)
			return
		}

		info, err := convert.Inspect(doc.Data)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"filename": doc.Filename,
			"size":     doc.Size(),
			"info":     info,
		})
	}
}
