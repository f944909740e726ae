package lms

import (
	"errors"
	"fmt"
)

// Kind classifies every Remote Client failure.
type Kind int

const (
	// KindUnavailable: transport failure, timeout, bad configuration or an
	// undecodable response.
	KindUnavailable Kind = iota + 1
	// KindRejected: the LMS answered with a structured exception.
	KindRejected
	// KindNotFound: the entity does not exist. Not a hard failure.
	KindNotFound
	// KindUnsupported: the capability is absent for this entity (for example
	// completion tracking disabled on a course). Distinct from NotFound.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

var (
	ErrUnavailable = errors.New("lms: unavailable")
	ErrRejected    = errors.New("lms: rejected")
	ErrNotFound    = errors.New("lms: not found")
	ErrUnsupported = errors.New("lms: unsupported")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrUnavailable
	case KindRejected:
		return ErrRejected
	case KindNotFound:
		return ErrNotFound
	case KindUnsupported:
		return ErrUnsupported
	default:
		return nil
	}
}

// Error is returned by every Client operation.
type Error struct {
	Op      string // web-service function
	Kind    Kind
	Code    string // LMS errorcode, when the LMS supplied one
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Code != "" {
		return fmt.Sprintf("lms %s: %s [%s]: %s", e.Op, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("lms %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so callers can write
// errors.Is(err, lms.ErrNotFound).
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Error codes that mean "no such record".
var notFoundCodes = map[string]bool{
	"invaliduser":          true,
	"invaliduserid":        true,
	"invalidrecord":        true,
	"invalidrecordunknown": true,
	"usernotenrolled":      true,
	"invalidcourseid":      true,
}

// Error codes that mean completion tracking is not available for the course.
var unsupportedCodes = map[string]bool{
	"nocriteriaset":        true,
	"completionnotenabled": true,
	"err_nocriteria":       true,
}

// Error codes that point at configuration problems rather than the entity.
var unavailableCodes = map[string]bool{
	"invalidtoken":          true,
	"accessexception":       true,
	"webservicesnotenabled": true,
	"servicenotavailable":   true,
	"sitemaintenance":       true,
}

func classify(code string) Kind {
	switch {
	case notFoundCodes[code]:
		return KindNotFound
	case unsupportedCodes[code]:
		return KindUnsupported
	case unavailableCodes[code]:
		return KindUnavailable
	default:
		return KindRejected
	}
}
