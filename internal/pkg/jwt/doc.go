// Package jwt issues and parses the session tokens.
//
// Tokens are HS512 signed and carry only registered claims: subject, issued
// at, expiry and a unique token id (jti). Anything else about the principal is
// looked up per request, so a token never carries stale roles.
package jwt
