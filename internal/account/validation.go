package account

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
)

// RegisterInput is the text part of a registration plus the staged media
type RegisterInput struct {
	Username       string `json:"username" form:"username" validate:"notblank"`
	Email          string `json:"email" form:"email" validate:"notblank"`
	FullName       string `json:"fullName" form:"fullName" validate:"notblank"`
	Password       string `json:"password" form:"password" validate:"notblank"`
	AvatarPath     string `json:"-" form:"-"`
	CoverImagePath string `json:"-" form:"-"`
}

type LoginInput struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password" validate:"notblank"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" form:"oldPassword" validate:"notblank"`
	NewPassword string `json:"newPassword" form:"newPassword" validate:"notblank"`
}

type UpdateDetailsInput struct {
	FullName string `json:"fullName" form:"fullName" validate:"notblank"`
	Email    string `json:"email" form:"email" validate:"notblank"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank validation: %v", err))
	}
	return v
}

// check validates in and reports failures as a Validation error with one
// detail per offending field
func (s *Service) check(in interface{}, message string) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return response.Internal("Something went wrong").WithCause(err)
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s is required", fe.Field()))
	}
	return response.Validation(message, details...)
}
