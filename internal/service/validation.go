package service

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
)

const dateLayout = "2006-01-02"

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

func validateUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return errors.InvalidInput(field, "must be a valid UUID")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.InvalidInput("email", "invalid email address")
	}
	return nil
}

func validatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return errors.InvalidInput("phone", "invalid phone number")
	}
	return nil
}

func validateDate(field, value string) (time.Time, error) {
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.InvalidInput(field, "invalid date format, expected YYYY-MM-DD")
	}
	return d, nil
}

// trimOptional returns nil for nil or blank values.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
