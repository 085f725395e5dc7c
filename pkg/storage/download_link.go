package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidLink is returned for malformed or tampered tokens.
	ErrInvalidLink = errors.New("invalid download link")
	// ErrLinkExpired is returned for well-formed tokens past their expiry.
	ErrLinkExpired = errors.New("download link expired")
)

// LinkSigner issues HMAC-signed, time-limited references to remote report files.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner constructs a signer with the provided secret and TTL.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LinkSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a token binding subject (the dashboard session) to target.
func (s *LinkSigner) Sign(subject, target string) (string, time.Time, error) {
	if subject == "" || target == "" {
		return "", time.Time{}, fmt.Errorf("subject and target required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedTarget := base64.RawURLEncoding.EncodeToString([]byte(target))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(encodedSubject, ts, encodedTarget)
	return strings.Join([]string{encodedSubject, ts, encodedTarget, signature}, "."), expiresAt, nil
}

// Verify checks the signature and expiry and returns the embedded subject and target.
func (s *LinkSigner) Verify(token string) (subject, target string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrInvalidLink
	}
	encodedSubject, ts, encodedTarget, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedSubject, ts, encodedTarget)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", ErrInvalidLink
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", ErrInvalidLink
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrLinkExpired
	}
	rawSubject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return "", "", ErrInvalidLink
	}
	rawTarget, err := base64.RawURLEncoding.DecodeString(encodedTarget)
	if err != nil {
		return "", "", ErrInvalidLink
	}
	return string(rawSubject), string(rawTarget), nil
}

func (s *LinkSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
