// Package auth mints and checks the tokens a proximity peer presents when it
// opens its link to the skull.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenPeer   = errors.New("peer id mismatch")
	ErrPeerID      = errors.New("invalid peer id")
	ErrNoSecret    = errors.New("peer token secret not configured")
)

// GeneratePeerToken builds a token for peerID expiring at expUnix.
// Format: base64url(peer_id + "." + exp_unix + "." + hex(hmac_sha256(secret, peer_id+"."+exp)))
func GeneratePeerToken(secret, peerID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if peerID == "" || strings.Contains(peerID, ".") {
		return "", ErrPeerID
	}
	msg := peerID + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// MintPeerToken is GeneratePeerToken with an expiry ttl after now.
func MintPeerToken(secret, peerID string, now time.Time, ttl time.Duration) (string, error) {
	return GeneratePeerToken(secret, peerID, now.Add(ttl).Unix())
}

// ValidatePeerToken checks the signature and expiry and returns the embedded
// peer id and expiry. A token stays valid for skewSeconds past its expiry.
// An empty expectPeerID accepts any peer.
func ValidatePeerToken(secret, token, expectPeerID string, now time.Time, skewSeconds int) (string, int64, error) {
	if secret == "" {
		return "", 0, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, ErrTokenFormat
	}
	peer, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectPeerID != "" && peer != expectPeerID {
		return "", 0, ErrTokenPeer
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	want, _ := hex.DecodeString(sign(secret, peer+"."+expStr))
	// constant-time compare
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return peer, exp, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
