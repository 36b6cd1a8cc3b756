package account

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"filmbase.org/internal/apperr"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{5,50}$`)

// Registration is a self-service sign-up request.
type Registration struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	LangKey   string
	ImageURL  string
	Password  string
}

func (r Registration) validate() error {
	return invalidInput(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(5, 50), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Length(5, 254), is.Email),
		validation.Field(&r.FirstName, validation.Length(0, 50)),
		validation.Field(&r.LastName, validation.Length(0, 50)),
		validation.Field(&r.ImageURL, validation.Length(0, 255)),
		validation.Field(&r.LangKey, validation.Length(2, 10)),
	))
}

// Profile holds the fields an account holder may change on their own account.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	LangKey   string
	ImageURL  string
}

func (p Profile) validate() error {
	return invalidInput(validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Length(5, 254), is.Email),
		validation.Field(&p.FirstName, validation.Length(0, 50)),
		validation.Field(&p.LastName, validation.Length(0, 50)),
		validation.Field(&p.ImageURL, validation.Length(0, 255)),
		validation.Field(&p.LangKey, validation.Length(2, 10)),
	))
}

// AdminUser is an administrative create or update request. ID is empty on
// create and required on update.
type AdminUser struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Email     string
	ImageURL  string
	LangKey   string
	Activated bool
	Roles     []string
}

func (u AdminUser) validate() error {
	return invalidInput(validation.ValidateStruct(&u,
		validation.Field(&u.Username, validation.Required, validation.Length(5, 50), validation.Match(usernamePattern)),
		validation.Field(&u.Email, validation.Length(5, 254), is.Email),
		validation.Field(&u.FirstName, validation.Length(0, 50)),
		validation.Field(&u.LastName, validation.Length(0, 50)),
		validation.Field(&u.ImageURL, validation.Length(0, 255)),
		validation.Field(&u.LangKey, validation.Length(2, 10)),
	))
}

// CheckPasswordPolicy enforces the length bounds on a new password.
func CheckPasswordPolicy(password string) error {
	if n := len(password); n < PasswordMinLength || n > PasswordMaxLength {
		return apperr.New(apperr.KindInvalidPassword,
			"password must be between %d and %d characters long", PasswordMinLength, PasswordMaxLength)
	}
	return nil
}

func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.KindInvalidInput, "%s", err.Error())
}
