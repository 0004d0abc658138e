// Package auth issues and validates the bearer tokens that gate privileged
// certificate operations, and verifies administrator credentials.
//
// Tokens are HS256 JWTs carrying the subject, issue time and expiry. They are
// stateless: validation needs only the signing secret, and expiry is the only
// way a token stops being accepted.
//
// Credential verifiers compare usernames in constant time and passwords
// through argon2id hashes, so a failed login does not reveal which half of
// the pair was wrong.
package auth
