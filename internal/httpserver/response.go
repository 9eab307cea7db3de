package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mapleshade20/online-judge/pkg/ojerr"
)

// errorBody is the uniform error envelope of SPEC_FULL §6/§7.
type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func fail(c *gin.Context, err error) {
	e := ojerr.From(err)
	c.JSON(e.Code.HTTPStatus(), errorBody{
		Code:    int(e.Code),
		Reason:  e.Code.Reason(),
		Message: e.Error(),
	})
}
