package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrValidation marks errors caused by invalid user input.
var ErrValidation = errors.New("validation error")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateNotificationConfig checks a config before it is written.
// An empty manager email is allowed; such configs are skipped at run time.
func (v *Validator) ValidateNotificationConfig(c *NotificationConfig) error {
	if c == nil {
		return invalid("config is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name cannot be empty")
	}
	if len(c.Name) > 255 {
		return invalid("name too long (max 255 characters)")
	}
	if c.TeamID <= 0 {
		return invalid("team_id must be a positive helpdesk team id")
	}
	if !c.Frequency.Valid() {
		return invalid("frequency must be daily, weekly or monthly, got %q", c.Frequency)
	}
	if err := v.ValidateEmail(c.ManagerEmail); err != nil {
		return err
	}

	if err := v.ValidatePercentTarget("SLA target", c.SLATarget); err != nil {
		return err
	}
	if err := v.ValidatePercentTarget("satisfaction target", c.SatisfactionTarget); err != nil {
		return err
	}
	if c.ResponseTimeTarget < 0 {
		return invalid("response time target cannot be negative")
	}
	if c.ResolutionTimeTarget < 0 {
		return invalid("resolution time target cannot be negative")
	}

	if c.PointsPerTicket < 0 || c.PointsSLAMet < 0 || c.PointsSatisfaction < 0 {
		return invalid("point weights cannot be negative")
	}

	return nil
}

func (v *Validator) ValidatePercentTarget(field string, value float64) error {
	if !(value >= 0 && value <= 100) {
		return invalid("%s must be between 0 and 100%%", field)
	}
	return nil
}

func (v *Validator) ValidateEmail(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return invalid("manager_email %q is not a valid address", address)
	}
	if parsed.Address != address {
		return invalid("manager_email must be a bare address, got %q", address)
	}
	return nil
}
