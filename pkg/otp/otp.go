// Package otp parses otpauth:// enrollment URIs into their components.
// The parser is strict about the secret (it must be base32) and lenient
// about everything else, matching what authenticator apps emit in practice.
package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scheme is the URI scheme for one-time-code enrollment.
const Scheme = "otpauth"

// Defaults applied when the URI omits the parameter.
const (
	DefaultDigits = 6
	DefaultPeriod = 30
)

// Errors returned by Parse.
var (
	ErrNotEnrollmentURI = errors.New("otp: not an otpauth URI")
	ErrMissingSecret    = errors.New("otp: missing secret parameter")
	ErrInvalidSecret    = errors.New("otp: secret is not valid base32")
	ErrInvalidDigits    = errors.New("otp: digits must be 6-8")
)

// Enrollment is a parsed otpauth URI.
type Enrollment struct {
	Type   string // "totp" or "hotp"
	Issuer string
	Label  string // account label, issuer prefix stripped
	Secret string // normalized base32, no padding
	Digits int
	Period int // seconds, TOTP only
	URI    string // the original raw URI
}

// Parse parses an otpauth:// URI. Issuer and label are Unicode-normalized
// (NFKC) so visually identical strings compare equal.
func Parse(raw string) (*Enrollment, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnrollmentURI, err)
	}
	if u.Scheme != Scheme {
		return nil, ErrNotEnrollmentURI
	}

	e := &Enrollment{
		Type:   strings.ToLower(u.Host),
		Digits: DefaultDigits,
		Period: DefaultPeriod,
		URI:    raw,
	}

	q := u.Query()

	secret := normalizeSecret(q.Get("secret"))
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if !validBase32(secret) {
		return nil, ErrInvalidSecret
	}
	e.Secret = secret

	// Label is the path, optionally "Issuer:account".
	label := strings.TrimPrefix(u.Path, "/")
	if decoded, err := url.PathUnescape(label); err == nil {
		label = decoded
	}
	if i := strings.Index(label, ":"); i >= 0 {
		e.Issuer = strings.TrimSpace(label[:i])
		label = strings.TrimSpace(label[i+1:])
	}
	e.Label = norm.NFKC.String(label)

	// An explicit issuer parameter wins over the label prefix.
	if issuer := q.Get("issuer"); issuer != "" {
		e.Issuer = issuer
	}
	e.Issuer = norm.NFKC.String(e.Issuer)

	if d := q.Get("digits"); d != "" {
		digits, err := strconv.Atoi(d)
		if err != nil || digits < 6 || digits > 8 {
			return nil, ErrInvalidDigits
		}
		e.Digits = digits
	}

	if p := q.Get("period"); p != "" {
		if period, err := strconv.Atoi(p); err == nil && period > 0 {
			e.Period = period
		}
	}

	return e, nil
}

// IsEnrollmentURI reports whether the raw string looks like an otpauth URI,
// without fully validating it.
func IsEnrollmentURI(raw string) bool {
	return strings.HasPrefix(raw, Scheme+"://")
}

// Title returns a display name for the enrollment: "Issuer (label)" when
// both are present.
func (e *Enrollment) Title() string {
	switch {
	case e.Issuer != "" && e.Label != "":
		return fmt.Sprintf("%s (%s)", e.Issuer, e.Label)
	case e.Issuer != "":
		return e.Issuer
	default:
		return e.Label
	}
}

func normalizeSecret(secret string) string {
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return strings.TrimRight(secret, "=")
}

func validBase32(secret string) bool {
	_, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	return err == nil
}
