package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	errors "github.com/frahmantamala/rbac-service/internal"
)

const Wildcard = "*"

var (
	usernamePattern       = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	emailPattern          = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	identifierPattern     = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	permissionCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)
)

const roleNameForbidden = `<>"'\/`

func ValidateUsername(username string) *errors.AppError {
	v := NewValidator()
	v.Field("username", username).
		Required().
		MinLength(3, errors.ErrCodeInvalidUsername).
		MaxLength(32, errors.ErrCodeInvalidUsername).
		Matches(usernamePattern, "username must start with a letter and contain only letters, digits and underscores", errors.ErrCodeInvalidUsername)
	return v.Validate()
}

func ValidateEmail(email string) *errors.AppError {
	v := NewValidator()
	v.Field("email", email).
		Required().
		MaxLength(64, errors.ErrCodeInvalidEmail).
		Matches(emailPattern, "email format is invalid", errors.ErrCodeInvalidEmail)
	return v.Validate()
}

// ValidatePassword enforces 8 to 128 characters with at least one lower case
// letter, one upper case letter, one digit and one special character.
func ValidatePassword(password string) *errors.AppError {
	v := NewValidator()
	v.Field("password", password).
		Required().
		MinLength(8, errors.ErrCodeWeakPassword).
		MaxLength(128, errors.ErrCodeWeakPassword).
		Custom(func(value interface{}) *errors.AppError {
			if !passwordIsComplex(value.(string)) {
				return errors.NewValidationFieldError("password",
					"password must contain upper and lower case letters, a digit and a special character",
					errors.ErrCodeWeakPassword)
			}
			return nil
		})
	return v.Validate()
}

func passwordIsComplex(s string) bool {
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return lower && upper && digit && special
}

func ValidateRoleName(name string) *errors.AppError {
	v := NewValidator()
	v.Field("role_name", name).
		Required().
		MinLength(2, errors.ErrCodeInvalidRoleName).
		MaxLength(32, errors.ErrCodeInvalidRoleName).
		Excludes(roleNameForbidden, errors.ErrCodeInvalidRoleName)
	return v.Validate()
}

func ValidateRoleCode(code string) *errors.AppError {
	v := NewValidator()
	v.Field("role_code", code).
		Required().
		MinLength(2, errors.ErrCodeInvalidRoleCode).
		MaxLength(32, errors.ErrCodeInvalidRoleCode).
		Matches(identifierPattern, "role_code must start with a lower case letter and contain only lower case letters, digits and underscores", errors.ErrCodeInvalidRoleCode)
	return v.Validate()
}

// NormalizePermissionCode trims and lower-cases a requested permission code.
func NormalizePermissionCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidatePermissionCode checks a requested code. Wildcards are not accepted
// here; they only exist in stored definitions.
func ValidatePermissionCode(code string) *errors.AppError {
	if !permissionCodePattern.MatchString(code) {
		return errors.NewValidationError("permission code must have the form resource:action", errors.ErrCodeInvalidPermissionCode)
	}
	return nil
}

// ValidatePermissionDefinition checks a stored permission. resource and
// action are each either "*" or a lower case identifier, and code must be
// exactly resource:action.
func ValidatePermissionDefinition(name, code, resource, action string) *errors.AppError {
	v := NewValidator()
	v.Field("permission_name", name).
		Required().
		MinLength(2, errors.ErrCodeInvalidPermission).
		MaxLength(64, errors.ErrCodeInvalidPermission)
	v.Field("resource_type", resource).
		Required().
		Custom(segment("resource_type", resource, 2, 32))
	v.Field("action_type", action).
		Required().
		Custom(segment("action_type", action, 2, 16))
	v.Field("permission_code", code).
		Required().
		Custom(func(value interface{}) *errors.AppError {
			if value.(string) != resource+":"+action {
				return errors.NewValidationFieldError("permission_code",
					"permission_code must equal resource_type:action_type", errors.ErrCodeInvalidPermissionCode)
			}
			return nil
		})
	return v.Validate()
}

func segment(field, value string, min, max int) ValidatorFunc {
	return func(interface{}) *errors.AppError {
		if value == Wildcard {
			return nil
		}
		n := utf8.RuneCountInString(value)
		if n < min || n > max || !identifierPattern.MatchString(value) {
			return errors.NewValidationFieldError(field,
				field+" must be * or a lower case identifier of the allowed length", errors.ErrCodeInvalidPermission)
		}
		return nil
	}
}

func ValidateID(field string, id int64) *errors.AppError {
	v := NewValidator()
	v.Field(field, id).MinInt(1, errors.ErrCodeInvalidID)
	return v.Validate()
}
