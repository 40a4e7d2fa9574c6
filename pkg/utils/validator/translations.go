package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

func (v *Validator) registerCustomTranslations() {
	if t := v.GetTranslator(LangEN); t != nil {
		v.registerAll(t, map[string]string{
			TagNotBlank:     "{0} must not be blank",
			TagHTTPURL:      "{0} must be an absolute http or https URL",
			TagNoWhitespace: "{0} must not contain whitespace characters",
		})
	}
	if t := v.GetTranslator(LangZH); t != nil {
		v.registerAll(t, map[string]string{
			TagNotBlank:     "{0}不能为空白",
			TagHTTPURL:      "{0}必须是有效的 http 或 https 地址",
			TagNoWhitespace: "{0}不能包含空白字符",
		})
	}
}

func (v *Validator) registerAll(trans ut.Translator, messages map[string]string) {
	for tag, message := range messages {
		registerTranslation(v.validate, trans, tag, message)
	}
}

// RegisterTranslation registers a single translation override.
func (v *Validator) RegisterTranslation(lang, tag, message string) {
	trans := v.GetTranslator(lang)
	if trans == nil {
		return
	}
	registerTranslation(v.validate, trans, tag, message)
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
