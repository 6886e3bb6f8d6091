package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

const maxBodyBytes = 1 << 20

// custom validation tags
const (
	notBlankTag = "notblank"
	futureTag   = "future"
)

// invalidRequest is a malformed or invalid body. writeError turns it into a
// 400 with per-field messages.
type invalidRequest struct {
	message string
	fields  map[string]string
}

func (e *invalidRequest) Error() string { return e.message }

// Validator decodes request bodies and checks their `validate` tags. Error
// messages use JSON field names and English translations.
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
	now   func() time.Time
}

// NewValidator builds a validator. now drives the "future" tag.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	val := &Validator{v: v, trans: trans, now: now}
	_ = v.RegisterValidation(notBlankTag, notBlank)
	_ = v.RegisterValidation(futureTag, val.inFuture)
	val.registerMessage(notBlankTag, "{0} cannot be blank")
	val.registerMessage(futureTag, "{0} must be in the future")
	return val
}

func (val *Validator) registerMessage(tag, text string) {
	_ = val.v.RegisterTranslation(tag, val.trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field())
			return msg
		},
	)
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func (val *Validator) inFuture(fl validator.FieldLevel) bool {
	switch t := fl.Field().Interface().(type) {
	case time.Time:
		return t.After(val.now())
	case *time.Time:
		return t == nil || t.After(val.now())
	}
	return false
}

// Bind decodes the JSON body into dst and validates it.
func (val *Validator) Bind(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &invalidRequest{message: "request body must contain a single JSON object"}
	}
	return val.Struct(dst)
}

// Struct validates an already populated value.
func (val *Validator) Struct(dst any) error {
	err := val.v.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("handler: validating request: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(val.trans)
	}
	return &invalidRequest{message: "request validation failed", fields: fields}
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return &invalidRequest{message: "request body is empty"}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &invalidRequest{message: "request body is not valid JSON"}
	case errors.As(err, &typeErr):
		return &invalidRequest{
			message: "request body has a field of the wrong type",
			fields:  map[string]string{typeErr.Field: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)},
		}
	case errors.As(err, &maxErr):
		return &invalidRequest{message: "request body is too large"}
	default:
		return &invalidRequest{message: "request body could not be read"}
	}
}
