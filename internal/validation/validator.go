// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package validation wraps go-playground/validator with a process-wide
// instance, JSON field names in messages, and a "snowflake" tag for chat
// platform ids.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError describes one failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the JSON name of the failed field.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the failed validation tag.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, if any.
func (e *ValidationError) Param() string { return e.param }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of a request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i := range ve.errors {
		messages[i] = ve.errors[i].message
	}
	return strings.Join(messages, "; ")
}

// Details returns a map suitable for an API error body.
func (ve *RequestValidationError) Details() map[string]interface{} {
	fields := make([]map[string]interface{}, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
	}
	return map[string]interface{}{"fields": fields}
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		if err := v.RegisterValidation("snowflake", isSnowflake); err != nil {
			panic(fmt.Sprintf("register snowflake validation: %v", err))
		}
		validate = v
	})
	return validate
}

// ValidateStruct validates s and returns nil when it is valid.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldPath(fe),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}

// fieldPath drops the root struct name: "VoteRequest.selected[0]" -> "selected[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// isSnowflake accepts Discord-style numeric ids.
func isSnowflake(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"url":       "%s must be a valid URL",
	"snowflake": "%s must be a numeric platform id",
	"uuid":      "%s must be a valid UUID",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := fieldPath(fe)
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}
	switch tag {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
