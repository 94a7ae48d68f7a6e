// Package validate provides a struct-validation singleton used by record
// construction and parsing. It is the same validator+translator pairing the
// teacher's HTTP bind layer uses, narrowed to struct validation since
// nothing here parses untrusted request bodies.
package validate

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldError aliases validator.FieldError
type FieldError = validator.FieldError

var (
	once sync.Once
	v    *validator.Validate
	tr   ut.Translator
)

func initOnce() {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		tr, _ = uni.GetTranslator("en")

		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, tr)
	})
}

// Get returns the singleton validator, initializing it on first use.
func Get() *validator.Validate {
	initOnce()
	return v
}

// Struct validates s and returns the first field error's name and translated
// message, or ("", "") if s is valid.
func Struct(s any) (field, message string, err error) {
	initOnce()
	verr := v.Struct(s)
	if verr == nil {
		return "", "", nil
	}
	if inv, ok := verr.(*validator.InvalidValidationError); ok {
		return "", inv.Error(), verr
	}
	if verrs, ok := verr.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			return fe.Field(), fe.Translate(tr), verr
		}
	}
	return "", verr.Error(), verr
}
