// Package cryptoutils provides the hashing primitives used by the certificate
// ledger service.
//
// # Content digests
//
// Digest and DigestBytes compute the SHA-256 fingerprint of an artifact. Input
// is consumed in fixed 4 KiB chunks so memory use does not depend on artifact
// size. The digest is a pure function of the bytes: file names and upload times
// play no part in it.
//
// # Password hashes
//
// HashPassword and VerifyPassword store admin passwords as argon2id hashes in
// the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<base64 salt>$<base64 key>
//
// Verification recomputes the key with the stored parameters and compares in
// constant time. The same format is read from Vault by auth.VaultCredentials.
package cryptoutils
