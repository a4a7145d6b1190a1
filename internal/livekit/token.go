package livekit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AccessToken creates a LiveKit-compatible access token using HMAC-SHA256.
// The JWT carries a 'video' grant allowing the identity to join the named
// room. apiKey becomes the 'iss' claim; apiSecret signs the token.
func AccessToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, error) {
	grant := map[string]any{"room": room, "roomJoin": true}
	return signedToken(apiKey, apiSecret, identity, grant, ttl)
}

// ServerToken creates a token for server-to-server Twirp calls (room admin
// and SIP dial-out). No identity is bound.
func ServerToken(apiKey, apiSecret string, ttl time.Duration) (string, error) {
	grant := map[string]any{"roomCreate": true, "roomAdmin": true, "roomList": true}
	return signedToken(apiKey, apiSecret, "", grant, ttl)
}

func signedToken(apiKey, apiSecret, identity string, videoGrant map[string]any, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("livekit api key/secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now().Unix()
	exp := time.Now().Add(ttl).Unix()

	// random jti
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	jti := hex.EncodeToString(b)

	claims := jwt.MapClaims{
		"jti":   jti,
		"iss":   apiKey,
		"nbf":   now,
		"exp":   exp,
		"sub":   identity,
		"name":  identity,
		"video": videoGrant,
	}
	if identity == "" {
		claims["sip"] = map[string]any{"admin": true}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
