package flows

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/nickauth/password"
)

const (
	NicknameMinLength = 3
	NicknameMaxLength = 30
)

var nicknamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NormalizeNickname lowercases and trims a nickname.
func NormalizeNickname(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidNickname reports whether an already normalized nickname is
// acceptable.
func ValidNickname(nickname string) bool {
	n := len(nickname)
	return n >= NicknameMinLength && n <= NicknameMaxLength && nicknamePattern.MatchString(nickname)
}

func nicknameErrors(nickname string) []FieldError {
	switch {
	case nickname == "":
		return []FieldError{{Field: "nickname", Message: "Nickname is required"}}
	case len(nickname) < NicknameMinLength:
		return []FieldError{{Field: "nickname", Message: "Nickname must be at least 3 characters"}}
	case len(nickname) > NicknameMaxLength:
		return []FieldError{{Field: "nickname", Message: "Nickname cannot exceed 30 characters"}}
	case !nicknamePattern.MatchString(nickname):
		return []FieldError{{Field: "nickname", Message: "Nickname can only contain lowercase letters, numbers and underscores"}}
	}
	return nil
}

func passwordErrors(field, plain string) []FieldError {
	if plain == "" {
		msg := "Password is required"
		if field == "newPassword" {
			msg = "New password is required"
		}
		return []FieldError{{Field: field, Message: msg}}
	}
	switch err := password.CheckLength(plain); {
	case errors.Is(err, password.ErrPasswordTooShort):
		return []FieldError{{Field: field, Message: "Password must be at least 8 characters"}}
	case err != nil:
		return []FieldError{{Field: field, Message: "Password cannot exceed 100 characters"}}
	}
	return nil
}

func emailErrors(email string, required bool) []FieldError {
	if email == "" {
		if required {
			return []FieldError{{Field: "email", Message: "Email is required"}}
		}
		return nil
	}
	if err := fieldValidator().Var(email, "email"); err != nil {
		return []FieldError{{Field: "email", Message: "Please provide a valid email"}}
	}
	return nil
}
