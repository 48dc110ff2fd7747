// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package token parses and classifies the device-token strings the chat
// server hands the relay, one of four variants: an OpenPGP-encrypted
// envelope, an FCM (Android) token, a UBports push token, or a bare
// APNS token (production or sandbox).
package token

import (
	"strings"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

// Variant identifies which delivery path a Token belongs to.
type Variant int

const (
	// VariantEncrypted marks a still-encrypted openpgp: envelope; callers
	// must decrypt and re-parse before acting on it.
	VariantEncrypted Variant = iota
	VariantFCM
	VariantUBports
	VariantAPNSSandbox
	VariantAPNSProduction
)

const (
	prefixOpenPGP = "openpgp:"
	prefixFCM     = "fcm-"
	prefixUBports = "ubports-"
	prefixSandbox = "sandbox:"
)

func (v Variant) String() string {
	switch v {
	case VariantEncrypted:
		return "encrypted"
	case VariantFCM:
		return "fcm"
	case VariantUBports:
		return "ubports"
	case VariantAPNSSandbox:
		return "apns-sandbox"
	case VariantAPNSProduction:
		return "apns-production"
	default:
		return "unknown"
	}
}

// Token is the parsed, classified form of a raw token string.
type Token struct {
	Variant Variant
	// Raw is the token exactly as received (and, for Encrypted, including
	// the openpgp: prefix), the form persisted in Schedule's store.
	Raw string
	// Ciphertext holds the base64 payload for VariantEncrypted.
	Ciphertext string
	// Package holds the Android package name for VariantFCM.
	Package string
	// Value holds the bare device token for every variant except
	// VariantEncrypted (where the plaintext is not yet known).
	Value string
}

// Parse classifies s into a Token, matching prefixes in the fixed order:
// openpgp:, fcm-<package>:, ubports-, sandbox:, else bare APNS production.
// The fcm- branch requires a literal ':' separating package from token;
// its absence is a parse error. Parse never recurses into an openpgp:
// envelope — callers must decrypt the ciphertext and call Parse again on
// the plaintext.
func Parse(s string) (Token, error) {
	switch {
	case strings.HasPrefix(s, prefixOpenPGP):
		return Token{
			Variant:    VariantEncrypted,
			Raw:        s,
			Ciphertext: strings.TrimPrefix(s, prefixOpenPGP),
		}, nil

	case strings.HasPrefix(s, prefixFCM):
		rest := strings.TrimPrefix(s, prefixFCM)
		pkg, tok, ok := strings.Cut(rest, ":")
		if !ok {
			return Token{}, relerrors.Errorf(relerrors.KindValidation, "fcm token missing ':' separator: %q", s)
		}
		return Token{
			Variant: VariantFCM,
			Raw:     s,
			Package: pkg,
			Value:   tok,
		}, nil

	case strings.HasPrefix(s, prefixUBports):
		return Token{
			Variant: VariantUBports,
			Raw:     s,
			Value:   strings.TrimPrefix(s, prefixUBports),
		}, nil

	case strings.HasPrefix(s, prefixSandbox):
		return Token{
			Variant: VariantAPNSSandbox,
			Raw:     s,
			Value:   strings.TrimPrefix(s, prefixSandbox),
		}, nil

	default:
		return Token{
			Variant: VariantAPNSProduction,
			Raw:     s,
			Value:   s,
		}, nil
	}
}
