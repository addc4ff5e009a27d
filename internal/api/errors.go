package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
	"github.com/mdabidind/pdf-to-word-activa/internal/upload"
)

func statusForCode(code string) int {
	if code == upload.CodeLimitExceeded {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func respondWithError(c *gin.Context, err error) {
	var (
		uploadErr  *upload.Error
		convertErr *convert.Error
	)
	switch {
	case errors.As(err, &uploadErr):
		c.JSON(statusForCode(uploadErr.Code), gin.H{
			"code":    uploadErr.Code,
			"message": uploadErr.Message,
		})
	case errors.As(err, &convertErr) && convertErr.Code == convert.CodeUnsupportedPDF:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    convertErr.Code,
			"message": convertErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "The request was canceled.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "An internal server error occurred.",
		})
	}
}
