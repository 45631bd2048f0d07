// Package clock provides a tiny time abstraction.
//
// Expiry decisions (OTP validity, session lifetime, consent grants) all read
// time through Clocker so tests can drive them with a Manual clock instead of
// sleeping.
package clock
