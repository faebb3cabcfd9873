package engine

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"retentionline/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

func initValidator() {
	validate = validator.New()
	translator, _ = ut.New(en.New()).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	register("date", "{0} must be a date in YYYY-MM-DD format", func(fl validator.FieldLevel) bool {
		return validDate(fl.Field().String())
	})
	register("hhmm", "{0} must be a time in HH:MM format", func(fl validator.FieldLevel) bool {
		return validTime(fl.Field().String())
	})
	register("origin", "{0} is not a known origin category", func(fl validator.FieldLevel) bool {
		return domain.OriginCategory(fl.Field().String()).Valid()
	})
	register("required", "{0} is required", nil)
}

func register(tag, text string, fn validator.Func) {
	if fn != nil {
		_ = validate.RegisterValidation(tag, fn)
	}
	_ = validate.RegisterTranslation(tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// validateStruct runs struct tags and flattens failures into a
// ValidationError.
func validateStruct(v any) error {
	validateOnce.Do(initValidator)
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fe.Translate(translator)})
	}
	return out
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func validTime(s string) bool {
	_, err := time.Parse(timeLayout, s)
	return err == nil
}
