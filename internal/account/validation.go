package account

import (
	"regexp"
	"strings"

	"backend-escapevim/internal/shared/apperr"
)

const minPasswordLen = 6

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

var genders = map[string]struct{}{
	"male":   {},
	"female": {},
	"other":  {},
}

func ValidateUsername(username string) error {
	if username == "" {
		return apperr.ValidationError{Field: "username", Message: "username is required"}
	}
	if !usernamePattern.MatchString(username) {
		return apperr.ValidationError{Field: "username", Message: "username must contain only latin letters and digits"}
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return apperr.ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < minPasswordLen {
		return apperr.ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	return nil
}

// ValidateConfirmation is skipped when no confirmation was sent.
func ValidateConfirmation(password, confirm string) error {
	if confirm != "" && password != confirm {
		return apperr.ValidationError{Field: "confirm_password", Message: "passwords do not match"}
	}
	return nil
}

// NormalizeGender lowercases and checks the value against the known set.
// An empty gender is allowed.
func NormalizeGender(gender string) (string, error) {
	g := strings.ToLower(strings.TrimSpace(gender))
	if g == "" {
		return "", nil
	}
	if _, ok := genders[g]; !ok {
		return "", apperr.ValidationError{Field: "gender", Message: "gender must be male, female or other"}
	}
	return g, nil
}

func validateRegister(req RegisterRequest) (RegisterRequest, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return req, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return req, err
	}
	if err := ValidateConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return req, err
	}
	gender, err := NormalizeGender(req.Gender)
	if err != nil {
		return req, err
	}
	req.Gender = gender
	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Nickname == "" {
		req.Nickname = req.Username
	}
	return req, nil
}
