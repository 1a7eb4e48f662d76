package shared

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

// NewValidator instantiates the validator with the english error messages and every custom tag.
// It panics on a tag registration error, which only a programming mistake can cause.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	if err := core.InitValidators(validate, translator, payment.ValidationTags()...); err != nil {
		panic(err)
	}
	return validate, translator
}
