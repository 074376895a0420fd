package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Error is a rejected request body, keyed by field.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// BindAndValidate binds the JSON body into out and validates it. On failure
// it writes the 400 response and returns the error so the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "invalid request body: " + err.Error()})
		return err
	}
	if err := v.Struct(out); err != nil {
		verr := &Error{Fields: validationErrorsToMap(err)}
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "validation failed", "data": verr.Fields})
		return verr
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			// drop the top-level type name: "CheckoutRequest.address.state" -> "address.state"
			ns := fe.Namespace()
			if _, rest, ok := strings.Cut(ns, "."); ok {
				ns = rest
			}
			out[ns] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
