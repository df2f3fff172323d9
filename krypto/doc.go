// Package krypto holds the service's cryptography: the first-party session
// token codec, AES-GCM sealing of provider tokens at rest, and random token
// generation.
//
// # Session tokens
//
// SessionCodec signs HMAC JWTs in two kinds, access and refresh, each with its
// own secret and validity window:
//
//	codec, err := krypto.NewSessionCodec(krypto.SessionConfig{
//	    SecretKey:                 accessSecret,
//	    RefreshSecretKey:          refreshSecret,
//	    AccessTokenExpiryMinutes:  30,
//	    RefreshTokenExpiryMinutes: 1440,
//	})
//	token, err := codec.Issue(recordID, krypto.KindAccess, nil)
//	claims, err := codec.Verify(token, krypto.KindAccess)
//
// Verify reports ErrTokenExpired only for an authentic token past its
// window. Everything else, including a token of the other kind, is
// ErrTokenInvalid.
//
// # Sealing
//
// NewAESGCMService accepts a raw or base64 AES key. Seal and Open round-trip
// strings through base64(nonce || ciphertext).
package krypto
