// Package validator validates request and domain structs.
//
// Business code depends on the Validator interface; the go-playground v10
// implementation reports failures as a field to message map keyed by the
// field's JSON name.
package validator
