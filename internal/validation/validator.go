// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/ordertrail/internal/topic"
)

// CodeValidationFailed is the API error code for payload validation failures.
const CodeValidationFailed = "VALIDATION_FAILED"

// Engine returns the process-wide validator. Field names in its errors are
// json names, so messages read "orderId is required".
var Engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	for tag, fn := range map[string]validator.Func{
		"topic_id": isTopicID,
		"finite":   isFinite,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s: %v", tag, err))
		}
	}
	return v
})

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// isTopicID accepts ids that can be embedded in a topic name. Emptiness is
// left to "required".
func isTopicID(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.String {
		return false
	}
	if f.Len() == 0 {
		return true
	}
	_, err := topic.ForOrder(f.String())
	return err == nil
}

func isFinite(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.Float32 && f.Kind() != reflect.Float64 {
		return true
	}
	return !math.IsNaN(f.Float()) && !math.IsInf(f.Float(), 0)
}

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Value   interface{}
	Message string
}

// RequestValidationError lists every failed rule of a payload, in struct
// field order.
type RequestValidationError struct {
	errors []FieldError
}

// Errors returns the individual failures.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, fe := range ve.errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Message)
	}
	return b.String()
}

// Fields returns the failing field names.
func (ve *RequestValidationError) Fields() []string {
	out := make([]string, 0, len(ve.errors))
	for _, fe := range ve.errors {
		out = append(out, fe.Field)
	}
	return out
}

// APIError is the validation failure in the HTTP error envelope shape.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError shapes the failure for the HTTP envelope. A single failure
// reports {"field","tag"}; several report a "fields" list.
func (ve *RequestValidationError) ToAPIError() *APIError {
	out := &APIError{Code: CodeValidationFailed, Message: "Validation failed"}

	switch len(ve.errors) {
	case 0:
	case 1:
		fe := ve.errors[0]
		out.Message = fe.Message
		out.Details = map[string]interface{}{"field": fe.Field, "tag": fe.Tag}
	default:
		fields := make([]map[string]interface{}, 0, len(ve.errors))
		parts := make([]string, 0, len(ve.errors))
		for _, fe := range ve.errors {
			fields = append(fields, map[string]interface{}{
				"field":   fe.Field,
				"tag":     fe.Tag,
				"message": fe.Message,
			})
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		out.Message = strings.Join(parts, "; ")
		out.Details = map[string]interface{}{"fields": fields}
	}
	return out
}

// ValidateStruct runs the struct's validate tags. It returns nil when s is
// valid.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := Engine().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := make([]FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: describe(fe),
		})
	}
	return &RequestValidationError{errors: out}
}

func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "latitude":
		return field + " must be a valid latitude (-90 to 90)"
	case "longitude":
		return field + " must be a valid longitude (-180 to 180)"
	case "finite":
		return field + " must be a finite number"
	case "topic_id":
		return field + " must not contain ':' or whitespace"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
