package core

import (
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

// ValidationTag is a custom validation tag with its english message.
// A nil Func only replaces the message of a built-in tag.
type ValidationTag struct {
	Name string
	Text string
	Func validator.Func
}

const requiredText = "this field is required"

var baseTags = []ValidationTag{
	{Name: "notblank", Text: "this field cannot be blank", Func: notBlank},
	{Name: "required", Text: requiredText},
	{Name: "required_with", Text: requiredText},
}

// InitValidators sets up `validate` to report json field names with english messages,
// and registers the base tags followed by `extra`.
func InitValidators(validate *validator.Validate, translator ut.Translator, extra ...ValidationTag) error {
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		return errors.Wrap(err, "registering default translations")
	}
	validate.RegisterTagNameFunc(jsonFieldName)

	tags := append(append([]ValidationTag{}, baseTags...), extra...)
	for _, tag := range tags {
		if err := registerTag(validate, translator, tag); err != nil {
			return errors.Wrap(err, tag.Name)
		}
	}
	return nil
}

func registerTag(validate *validator.Validate, translator ut.Translator, tag ValidationTag) error {
	if tag.Func != nil {
		if err := validate.RegisterValidation(tag.Name, tag.Func); err != nil {
			return err
		}
	}
	return validate.RegisterTranslation(
		tag.Name, translator,
		// built-in tags already carry a default message
		func(t ut.Translator) error { return t.Add(tag.Name, tag.Text, tag.Func == nil) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(fe.Tag(), fe.Field())
			return s
		},
	)
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
