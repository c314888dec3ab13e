package response

import "github.com/gin-gonic/gin"

// Envelope padrão da API. Success carrega data; Error carrega a mensagem.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(c *gin.Context, status int, data any) {
	c.JSON(status, Body{Success: true, Data: data})
}

func Error(c *gin.Context, status int, err error) {
	msg := "erro interno"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, Body{Success: false, Error: msg})
}

func ErrorWithMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, Body{Success: false, Error: msg})
}
