// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var usStatePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the money and state rules registered.
// Decimal fields validate as float64 so numeric tags such as gte=0 apply.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
	_ = v.RegisterValidation("usstate", func(fl validator.FieldLevel) bool {
		return usStatePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

func decimalValue(field reflect.Value) interface{} {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		f, _ := d.Float64()
		return f
	case decimal.NullDecimal:
		if !d.Valid {
			return nil
		}
		f, _ := d.Decimal.Float64()
		return f
	}
	return nil
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// FieldErrors flattens validation errors into a field-keyed message map.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		if err != nil {
			out["_"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = "failed " + fe.Tag() + " validation"
	}
	return out
}
