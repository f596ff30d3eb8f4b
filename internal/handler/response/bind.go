package response

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// BindJSON decodes the body into dst, rejecting unknown fields, then runs the
// binding tag validation. On failure it writes a 400 and returns false.
func BindJSON(c *gin.Context, dst any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if dec.More() {
		BadRequest(c, "invalid request body: trailing data")
		return false
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		BadRequest(c, err.Error())
		return false
	}
	return true
}
