// Package validator wraps go-playground/validator with translated error
// messages and a gin binding adapter.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	zhtranslations "github.com/go-playground/validator/v10/translations/zh"
)

// 支持的语言。
const (
	LangEN = "en"
	LangZH = "zh"
)

// Validator 封装校验引擎与多语言翻译器。
type Validator struct {
	validate    *validator.Validate
	uni         *ut.UniversalTranslator
	trans       map[string]ut.Translator
	defaultLang string
}

var (
	globalMu sync.RWMutex
	global   *Validator
)

// Global 返回全局校验器，首次调用时创建。
func Global() *Validator {
	globalMu.RLock()
	v := global
	globalMu.RUnlock()
	if v != nil {
		return v
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New()
	}
	return global
}

// SetGlobal 替换全局校验器。
func SetGlobal(v *Validator) {
	globalMu.Lock()
	global = v
	globalMu.Unlock()
}

// New creates a validator with English (default) and Chinese translations
// and the custom rules registered.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonTagName)

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, zh.New())

	v := &Validator{
		validate:    validate,
		uni:         uni,
		trans:       make(map[string]ut.Translator, 2),
		defaultLang: LangEN,
	}

	if t, ok := uni.GetTranslator(LangEN); ok {
		_ = entranslations.RegisterDefaultTranslations(validate, t)
		v.trans[LangEN] = t
	}
	if t, ok := uni.GetTranslator(LangZH); ok {
		_ = zhtranslations.RegisterDefaultTranslations(validate, t)
		v.trans[LangZH] = t
	}

	v.registerCustomRules()
	v.registerCustomTranslations()
	return v
}

// GetTranslator 返回指定语言的翻译器，不存在时返回 nil。
func (v *Validator) GetTranslator(lang string) ut.Translator {
	return v.trans[lang]
}

// Validate validates a struct and returns *ValidationErrors with messages
// in the default language.
func (v *Validator) Validate(s any) error {
	return v.ValidateWithLang(s, v.defaultLang)
}

// ValidateWithLang validates a struct and translates messages into lang.
func (v *Validator) ValidateWithLang(s any, lang string) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return v.translate(verrs, lang)
}

// ValidateVar validates a single value against a tag expression.
func (v *Validator) ValidateVar(field any, tag string) error {
	return v.validate.Var(field, tag)
}

func (v *Validator) translate(verrs validator.ValidationErrors, lang string) *ValidationErrors {
	trans := v.GetTranslator(lang)
	if trans == nil {
		trans = v.GetTranslator(v.defaultLang)
	}

	out := &ValidationErrors{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		msg := fe.Error()
		if trans != nil {
			msg = fe.Translate(trans)
		}
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: msg,
		})
	}
	return out
}

// ValidateStruct implements gin's binding.StructValidator.
func (v *Validator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	return v.Validate(obj)
}

// Engine implements gin's binding.StructValidator.
func (v *Validator) Engine() any {
	return v.validate
}

// jsonTagName 使用 json 标签作为字段名，使错误信息与请求体字段一致。
func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}
