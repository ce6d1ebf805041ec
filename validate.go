package rapor

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags & texts
	notReservedTag  = "notreserved"
	notReservedText = "{0} must not be " + gradecodec.ReservedKey
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notReservedTag, notReservedValidation)
	registerCustomTranslation(notReservedTag, notReservedText)
}

func registerCustomTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// notReservedValidation rejects student IDs that would collide with the
// display-name key of the grade map.
func notReservedValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != gradecodec.ReservedKey
}

// validateInput runs struct validation and turns field errors into a
// client-input *Error with translated messages.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}
	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Translate(translator)
		fields[fe.Field()] = msg
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return &Error{Kind: KindInvalidInput, Message: strings.Join(msgs, "; "), Fields: fields}
}

type schoolRef struct {
	KodeBiasa string `json:"kodeBiasa" validate:"required"`
}

type studentRef struct {
	NISN string `json:"nisn" validate:"required,notreserved"`
}
