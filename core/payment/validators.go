package payment

import (
	"github.com/go-playground/validator/v10"

	"github.com/pariksha/lms/core"
)

const paymentKindText = "must be one of course, test or category"

// ValidationTags are the tags payment inputs are validated with.
func ValidationTags() []core.ValidationTag {
	return []core.ValidationTag{
		{Name: "paymentkind", Text: paymentKindText, Func: func(fl validator.FieldLevel) bool {
			return Kind(fl.Field().String()).Valid()
		}},
	}
}
