package driver

import (
	"errors"
	"fmt"
)

const (
	CodeSetup             = "SETUP"
	CodeElementNotFound   = "ELEMENT_NOT_FOUND"
	CodeTimeout           = "TIMEOUT"
	CodeAssertionMismatch = "ASSERTION_MISMATCH"
	CodeDriver            = "DRIVER"
)

// CodedError is a typed error used for stable verdict and API mapping.
// Expected and Observed are only set for ASSERTION_MISMATCH.
type CodedError struct {
	Code     string
	Message  string
	Cause    error
	Expected string
	Observed string
}

func (e *CodedError) Error() string {
	if e.Code == CodeAssertionMismatch {
		return fmt.Sprintf("%s: %s: expected %q, observed %q", e.Code, e.Message, e.Expected, e.Observed)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Mismatch builds an ASSERTION_MISMATCH error carrying both literals.
func Mismatch(msg, expected, observed string) error {
	return &CodedError{Code: CodeAssertionMismatch, Message: msg, Expected: expected, Observed: observed}
}

// CodeOf returns the code of the first CodedError in err's chain, or
// CodeDriver for any other non-nil error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeDriver
}

// By is a locator strategy.
type By string

const (
	ByID  By = "id"
	ByCSS By = "css"
)

// Locator is an immutable selector strategy and value pair.
type Locator struct {
	By    By
	Value string
}

// ID returns a locator matching the element with the given id attribute.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// CSS returns a locator matching the first element for a CSS selector.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// Query renders the locator as a document.querySelector selector.
func (l Locator) Query() string {
	if l.By == ByID {
		return "#" + l.Value
	}
	return l.Value
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}
