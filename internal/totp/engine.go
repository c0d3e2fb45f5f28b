// Package totp wraps time-based one-time password generation and verification
// for the second authentication factor.
package totp

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp/totp"
)

// period is the TOTP timestep length in seconds.
const period = 30

// Engine generates per-user TOTP secrets and verifies submitted codes.
// The issuer label shows up in authenticator apps next to the account name.
type Engine struct {
	issuer string
}

func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer}
}

// Enrollment is the result of generating a fresh secret: the base32 seed for
// manual entry and the otpauth:// URI the client renders as a QR code.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// GenerateSecret creates a fresh TOTP secret for the given account.
func (e *Engine) GenerateSecret(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// Verify checks a 6-digit code against the secret, allowing one time step of
// clock drift in either direction. On success it returns the timestep the
// code matched, so callers can refuse a second use of the same step.
func (e *Engine) Verify(secret, code string) (int64, bool) {
	now := time.Now().UTC()
	for _, skew := range []int{0, -1, 1} {
		at := now.Add(time.Duration(skew) * period * time.Second)
		expected, err := totp.GenerateCode(secret, at)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return at.Unix() / period, true
		}
	}
	return 0, false
}
