package subscriptions

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lysyi3m/rss-harvest/app/mirror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report yaml keys in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("feedurl", func(fl validator.FieldLevel) bool {
		return isFeedURL(fl.Field().String())
	})

	return v
}

// isFeedURL accepts absolute http(s) URLs and the mirror indirection scheme.
func isFeedURL(raw string) bool {
	if mirror.IsIndirect(raw) {
		return len(strings.TrimPrefix(strings.ToLower(raw), mirror.Scheme)) > 0
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateSubscription(sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("subscription is nil")
	}

	err := validate.Struct(sub)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "feedurl":
		return fmt.Sprintf("%s must be an http(s) or %s URL, got %q", field, mirror.Scheme, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
