package appointment

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindBusinessRule
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindBusinessRule:
		return "business_rule_violation"
	default:
		return "internal"
	}
}

type Rule string

const (
	RuleTooLate          Rule = "too_late"
	RuleSlotUnavailable  Rule = "slot_unavailable"
	RuleAlreadyConfirmed Rule = "already_confirmed"
	RuleExpired          Rule = "expired"
)

// Error is a caller-correctable failure. Anything that is not an *Error is internal.
type Error struct {
	Kind Kind
	Rule Rule
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	ErrProviderNotFound    = &Error{Kind: KindNotFound, Msg: "provider not found"}
	ErrClientNotFound      = &Error{Kind: KindNotFound, Msg: "client not found"}
	ErrSlotNotFound        = &Error{Kind: KindNotFound, Msg: "slot not found"}
	ErrAppointmentNotFound = &Error{Kind: KindNotFound, Msg: "appointment not found"}

	ErrTooLate = &Error{
		Kind: KindBusinessRule,
		Rule: RuleTooLate,
		Msg:  "reservations must be made at least 24 hours in advance",
	}
	ErrSlotUnavailable = &Error{
		Kind: KindBusinessRule,
		Rule: RuleSlotUnavailable,
		Msg:  "slot already has a confirmed or pending appointment",
	}
	ErrAlreadyConfirmed = &Error{
		Kind: KindBusinessRule,
		Rule: RuleAlreadyConfirmed,
		Msg:  "appointment is already confirmed",
	}
	ErrExpired = &Error{
		Kind: KindBusinessRule,
		Rule: RuleExpired,
		Msg:  "reservation has expired, make a new reservation",
	}
)

// KindOf classifies err. Errors that carry no *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RuleOf returns the violated business rule, or "" if err is not a rule violation.
func RuleOf(err error) Rule {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindBusinessRule {
		return e.Rule
	}
	return ""
}
