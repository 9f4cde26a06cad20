package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the "error" member of a failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Page is the data of a paginated list response. Items is rendered under the
// caller's key, e.g. "reservations".
type Page struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

// List writes items under key together with the paging fields.
func List(c *gin.Context, key string, items any, p Page) {
	Success(c, http.StatusOK, gin.H{
		key:        items,
		"total":    p.Total,
		"page":     p.Page,
		"per_page": p.PerPage,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   ErrorBody{Code: code, Message: message},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   ErrorBody{Code: code, Message: message, Details: details},
	})
}
