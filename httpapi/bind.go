package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/nickauth"
)

const maxBodyBytes = 1 << 20

var nicknameRule = regexp.MustCompile(`^[a-z0-9_]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknameRule.MatchString(fl.Field().String())
	})
	return v
}

// normalizer is implemented by requests that canonicalize fields before
// validation.
type normalizer interface {
	normalize()
}

// decode reads a JSON body of at most 1 MiB into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nickauth.ErrBadRequest.WithMessage("Request body too large")
		case errors.Is(err, io.EOF):
			return nickauth.ErrBadRequest.WithMessage("Request body is empty")
		default:
			return nickauth.ErrBadRequest.WithMessage("Malformed JSON body")
		}
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return s.check(dst)
}

// check runs struct validation and reports every failing field.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nickauth.ErrBadRequest.WithCause(err)
	}
	fields := make([]nickauth.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, nickauth.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return nickauth.NewValidationError(fields...)
}

var fieldLabels = map[string]string{
	"nickname":     "Nickname",
	"password":     "Password",
	"newPassword":  "New password",
	"email":        "Email",
	"token":        "Token",
	"captchaToken": "Captcha token",
	"role":         "Role",
	"isActive":     "Status",
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", label, fe.Param())
	case "email":
		return "Please provide a valid email"
	case "nickname":
		return "Nickname can only contain lowercase letters, numbers and underscores"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}
