// Package mail sends email messages.
//
// Use cases depend on the Mail interface and the provider-agnostic Message;
// the SMTP implementation uses gomail.
package mail
