// Package otp generates one-time passcodes.
//
// Codes are fixed-length decimal strings drawn from crypto/rand. Storage,
// hashing and attempt counting live with the caller; this package only knows
// how to produce a code.
package otp
