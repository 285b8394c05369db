package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Error categories a rule may report. They match the protocol error codes
// used by the server package.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeInvalidGrant            = "invalid_grant"
)

type undefined struct{}

// Undefined marks a parameter that was not supplied at all.
var Undefined any = undefined{}

// Error is returned when a value fails a rule.
type Error struct {
	Field   string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Field + " " + e.Message
}

// Rule is a single predicate over a parameter value.
type Rule struct {
	message string
	code    string
	check   func(v any) bool
}

// WithCode returns a copy of r that reports the given error category.
func (r Rule) WithCode(code string) Rule {
	r.code = code
	return r
}

// WithMessage returns a copy of r with a different failure message.
func (r Rule) WithMessage(msg string) Rule {
	r.message = msg
	return r
}

func newRule(message string, check func(v any) bool) Rule {
	return Rule{message: message, code: CodeInvalidRequest, check: check}
}

// NotUndefined fails when the parameter was not supplied.
func NotUndefined() Rule {
	return newRule("is required", func(v any) bool {
		_, missing := v.(undefined)
		return !missing
	})
}

// NotNull fails on a nil value.
func NotNull() Rule {
	return newRule("must not be null", func(v any) bool {
		switch t := v.(type) {
		case nil:
			return false
		case []string:
			return t != nil
		}
		return true
	})
}

// NotEmpty fails on an empty string or an empty list.
func NotEmpty() Rule {
	return newRule("must not be empty", func(v any) bool {
		switch t := v.(type) {
		case string:
			return t != ""
		case []string:
			return len(t) > 0
		}
		return true
	})
}

// IsString fails unless the value is a string.
func IsString() Rule {
	return newRule("must be a string", func(v any) bool {
		_, ok := v.(string)
		return ok
	})
}

// IsArray fails unless the value is a list of strings.
func IsArray() Rule {
	return newRule("must be an array", func(v any) bool {
		_, ok := v.([]string)
		return ok
	})
}

// IsInList fails unless the value is one of values.
func IsInList(values ...string) Rule {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	msg := fmt.Sprintf("must be one of [%s]", strings.Join(values, ", "))
	return newRule(msg, func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = allowed[s]
		return ok
	})
}

// MatchesRegex fails unless the string value matches re.
func MatchesRegex(re *regexp.Regexp) Rule {
	return newRule("has an invalid format", func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	})
}

// EachMatchesRegex fails unless every member of a list value matches re.
func EachMatchesRegex(re *regexp.Regexp) Rule {
	return newRule("contains an entry with an invalid format", func(v any) bool {
		list, ok := v.([]string)
		if !ok {
			return false
		}
		for _, s := range list {
			if !re.MatchString(s) {
				return false
			}
		}
		return true
	})
}

// Validate runs rules against value in order and returns the value as T.
// The first failing rule short-circuits the chain.
func Validate[T any](field string, value any, rules ...Rule) (T, error) {
	var zero T
	for _, rule := range rules {
		if !rule.check(value) {
			return zero, &Error{Field: field, Code: rule.code, Message: rule.message}
		}
	}
	typed, ok := value.(T)
	if !ok {
		return zero, &Error{Field: field, Code: CodeInvalidRequest, Message: "has an unexpected type"}
	}
	return typed, nil
}

// Optional is Validate for parameters that may be omitted. It reports
// present=false, without error, when value is Undefined.
func Optional[T any](field string, value any, rules ...Rule) (v T, present bool, err error) {
	if _, missing := value.(undefined); missing {
		return v, false, nil
	}
	v, err = Validate[T](field, value, rules...)
	return v, err == nil, err
}

// Param returns the single value of key, or Undefined when absent.
func Param(values url.Values, key string) any {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return Undefined
	}
	return v[0]
}

// ListParam returns the space-delimited value of key as a list, with
// duplicates removed and order kept, or Undefined when absent.
func ListParam(values url.Values, key string) any {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return Undefined
	}
	seen := make(map[string]struct{})
	list := []string{}
	for _, raw := range v {
		for _, item := range strings.Fields(raw) {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			list = append(list, item)
		}
	}
	return list
}
