// Package vault keeps per-platform session cookies encrypted at rest.
//
// The envelope is base64(IV || AES-256-CBC(PKCS7(JSON cookie map))) with a
// fresh 16-byte IV per write and key = SHA-256(hex-decoded operator key).
//
// Entries live in a KV backend under "<ig|fb>_cookies" with a companion
// "<ig|fb>_cookies_stale" flag. The catalog's config table is the default
// backend; KeyringKV uses the OS keychain.
package vault
