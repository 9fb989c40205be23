package otp

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Enrollment
		wantErr error
	}{
		{
			name: "full totp",
			uri:  "otpauth://totp/GitHub:alice?secret=JBSWY3DPEHPK3PXP&issuer=GitHub&digits=6&period=30",
			want: Enrollment{Type: "totp", Issuer: "GitHub", Label: "alice", Secret: "JBSWY3DPEHPK3PXP", Digits: 6, Period: 30},
		},
		{
			name: "issuer from label prefix",
			uri:  "otpauth://totp/Example:bob@example.com?secret=GEZDGNBV",
			want: Enrollment{Type: "totp", Issuer: "Example", Label: "bob@example.com", Secret: "GEZDGNBV", Digits: 6, Period: 30},
		},
		{
			name: "issuer parameter wins",
			uri:  "otpauth://totp/Old:carol?secret=GEZDGNBV&issuer=New",
			want: Enrollment{Type: "totp", Issuer: "New", Label: "carol", Secret: "GEZDGNBV", Digits: 6, Period: 30},
		},
		{
			name: "padded lowercase secret normalized",
			uri:  "otpauth://totp/x?secret=gezdgnbv======",
			want: Enrollment{Type: "totp", Label: "x", Secret: "GEZDGNBV", Digits: 6, Period: 30},
		},
		{
			name: "hotp",
			uri:  "otpauth://hotp/dev?secret=GEZDGNBV&digits=8",
			want: Enrollment{Type: "hotp", Label: "dev", Secret: "GEZDGNBV", Digits: 8, Period: 30},
		},
		{
			name:    "wrong scheme",
			uri:     "https://example.com",
			wantErr: ErrNotEnrollmentURI,
		},
		{
			name:    "missing secret",
			uri:     "otpauth://totp/Example:dave",
			wantErr: ErrMissingSecret,
		},
		{
			name:    "invalid secret",
			uri:     "otpauth://totp/x?secret=notbase32!!",
			wantErr: ErrInvalidSecret,
		},
		{
			name:    "digits out of range",
			uri:     "otpauth://totp/x?secret=GEZDGNBV&digits=4",
			wantErr: ErrInvalidDigits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got.Type != tt.want.Type {
				t.Errorf("Type = %q, want %q", got.Type, tt.want.Type)
			}
			if got.Issuer != tt.want.Issuer {
				t.Errorf("Issuer = %q, want %q", got.Issuer, tt.want.Issuer)
			}
			if got.Label != tt.want.Label {
				t.Errorf("Label = %q, want %q", got.Label, tt.want.Label)
			}
			if got.Secret != tt.want.Secret {
				t.Errorf("Secret = %q, want %q", got.Secret, tt.want.Secret)
			}
			if got.Digits != tt.want.Digits {
				t.Errorf("Digits = %d, want %d", got.Digits, tt.want.Digits)
			}
			if got.Period != tt.want.Period {
				t.Errorf("Period = %d, want %d", got.Period, tt.want.Period)
			}
			if got.URI != tt.uri {
				t.Errorf("URI = %q, want original", got.URI)
			}
		})
	}
}

func TestIsEnrollmentURI(t *testing.T) {
	if !IsEnrollmentURI("otpauth://totp/x?secret=GEZDGNBV") {
		t.Error("expected otpauth URI to be recognized")
	}
	if IsEnrollmentURI("https://example.com") {
		t.Error("expected https URI to be rejected")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		e    Enrollment
		want string
	}{
		{"issuer and label", Enrollment{Issuer: "GitHub", Label: "alice"}, "GitHub (alice)"},
		{"issuer only", Enrollment{Issuer: "GitHub"}, "GitHub"},
		{"label only", Enrollment{Label: "alice"}, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Title(); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}
