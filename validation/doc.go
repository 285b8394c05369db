// Package validation checks raw request parameters before they reach the
// authorization and token engines.
//
// A parameter is checked against an ordered list of rules. The first failing
// rule stops the chain and produces an *Error carrying the field name, the
// protocol error category assigned to that rule, and a readable message:
//
//	clientID, err := validation.Validate[string]("client_id", validation.Param(form, "client_id"),
//	    validation.NotUndefined(), validation.IsString(), validation.NotEmpty())
//
// Parameters that are absent from the request are represented by Undefined,
// which is distinct from a nil (null) value.
package validation
