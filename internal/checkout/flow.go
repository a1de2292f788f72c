package checkout

import "errors"

// Step is a checkout stage
type Step int

const (
	StepShipping Step = iota
	StepPayment
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidStep        = errors.New("action not allowed at this checkout step")
	ErrTermsNotAccepted   = errors.New("terms and conditions must be accepted")
	ErrAlreadyAtFirstStep = errors.New("already at the first checkout step")
	ErrAlreadyAtLastStep  = errors.New("already at the last checkout step")
)

// Flow is the position in the three-step checkout
type Flow struct {
	Step          Step `json:"step"`
	TermsAccepted bool `json:"termsAccepted"`
}

// Next advances one step once gate passes. gate receives the current step.
func (f Flow) Next(gate func(Step) error) (Flow, error) {
	if f.Step >= StepConfirmation {
		return f, ErrAlreadyAtLastStep
	}
	if gate != nil {
		if err := gate(f.Step); err != nil {
			return f, err
		}
	}
	f.Step++
	return f, nil
}

// Back goes one step back; it always succeeds except at the first step
func (f Flow) Back() (Flow, error) {
	if f.Step <= StepShipping {
		return f, ErrAlreadyAtFirstStep
	}
	f.Step--
	f.TermsAccepted = false
	return f, nil
}

// AcceptTerms sets the terms checkbox, only shown at the confirmation step
func (f Flow) AcceptTerms(accepted bool) (Flow, error) {
	if f.Step != StepConfirmation {
		return f, ErrInvalidStep
	}
	f.TermsAccepted = accepted
	return f, nil
}

// CanSubmit reports whether the final submit control is enabled
func (f Flow) CanSubmit() bool {
	return f.Step == StepConfirmation && f.TermsAccepted
}
