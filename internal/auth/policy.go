// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"net/mail"
	"unicode/utf8"

	"github.com/samber/oops"
)

// PasswordPolicy decides whether a password is acceptable at registration.
// A non-nil return is the rejection reason.
type PasswordPolicy interface {
	CheckPassword(password string) error
}

// EmailPolicy decides whether an email is acceptable at registration.
// A non-nil return is the rejection reason.
type EmailPolicy interface {
	CheckEmail(email string) error
}

// PasswordPolicyFunc adapts a function to PasswordPolicy.
type PasswordPolicyFunc func(password string) error

// CheckPassword calls f.
func (f PasswordPolicyFunc) CheckPassword(password string) error { return f(password) }

// EmailPolicyFunc adapts a function to EmailPolicy.
type EmailPolicyFunc func(email string) error

// CheckEmail calls f.
func (f EmailPolicyFunc) CheckEmail(email string) error { return f(email) }

// AllowAllPasswords accepts every password.
var AllowAllPasswords PasswordPolicy = PasswordPolicyFunc(func(string) error { return nil })

// AllowAllEmails accepts every email.
var AllowAllEmails EmailPolicy = EmailPolicyFunc(func(string) error { return nil })

// BcryptMaxPasswordBytes is the longest input bcrypt accepts. BcryptHasher
// digests longer passwords before they reach bcrypt.
const BcryptMaxPasswordBytes = 72

// LengthPolicy bounds password length. Min counts characters, MaxBytes counts
// bytes; a zero field leaves that side unbounded.
type LengthPolicy struct {
	Min      int
	MaxBytes int
}

// CheckPassword enforces the bounds.
func (p LengthPolicy) CheckPassword(password string) error {
	if p.Min > 0 && password == "" {
		return oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")
	}
	if n := utf8.RuneCountInString(password); n < p.Min {
		return oops.Code("PASSWORD_TOO_SHORT").With("min", p.Min).Errorf("password must be at least %d characters", p.Min)
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		return oops.Code("PASSWORD_TOO_LONG").With("max_bytes", p.MaxBytes).Errorf("password must be at most %d bytes", p.MaxBytes)
	}
	return nil
}

// AddressPolicy accepts bare RFC 5322 addresses such as "a@x.com". Display
// names and angle brackets are rejected.
type AddressPolicy struct{}

// CheckEmail parses the address.
func (AddressPolicy) CheckEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return oops.Code("EMAIL_MALFORMED").Wrapf(err, "malformed email address")
	}
	if addr.Name != "" || addr.Address != email {
		return oops.Code("EMAIL_NOT_BARE").Errorf("email must be a bare address")
	}
	return nil
}
