package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate — общий валидатор входных структур сервисов.
// Имена полей в сообщениях берутся из json-тегов.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput проверяет структуру по тегам validate и возвращает ErrValidation
// с перечнем нарушений.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " обязательно"
	case "max":
		return fmt.Sprintf("%s длиннее %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s короче %s", fe.Field(), fe.Param())
	case "email":
		return fe.Field() + ": некорректный email"
	case "oneof":
		return fmt.Sprintf("%s: допустимые значения %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s: нарушено правило %s", fe.Field(), fe.Tag())
}
