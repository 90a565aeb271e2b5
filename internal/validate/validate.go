// Package validate wires go-playground/validator into the Orchestrator's
// request structs (struct tags, not the ad-hoc null checks scattered
// through business logic). Grounded on common/net/http/withBody.go's
// newValidator/ValidateStruct pair, stripped of its Fiber/JSON-diff
// concerns (no HTTP surface here) and its metadata-nesting custom
// validators (SPEC_FULL.md's metadata is an opaque map with no nesting
// rule of its own), keeping the translator wiring and tag-name-from-json
// convention.
package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/summa-ledger/summa/internal/errkind"
)

// Validator wraps *validator.Validate with the translator needed to turn
// field errors into human-readable messages.
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

// New builds a Validator with English translations registered and the
// tag-name function set to read JSON tags, matching the teacher's
// convention so a failing field is reported by its wire name, not its Go
// field name.
func New() *Validator {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	v := validator.New()
	_ = entranslations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{v: v, trans: trans}
}

// Struct validates s against its `validate:"..."` tags, returning a
// structured INVALID_ARGUMENT error with one detail entry per failing
// field.
func (vd *Validator) Struct(s any) error {
	err := vd.v.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errkind.New(errkind.KindInvalidArgument, "SUMMA-2000", err.Error(), nil)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Translate(vd.trans)
	}
	return errkind.New(errkind.KindInvalidArgument, "SUMMA-2000", "request failed validation", details)
}
