// Package merge decides, field by field, whether a newly extracted value
// replaces the stored one.
//
// A candidate value is adopted when it agrees with the stored value (the
// confidence becomes the max of both), when its confidence reaches the
// threshold, or when it beats the stored confidence. Otherwise the stored
// value and confidence are kept. Fields the candidate does not carry are
// never touched.
package merge

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"venuefinds/internal/domain"
)

// DefaultThreshold is the confidence at which a differing value always wins.
const DefaultThreshold = 0.7

var (
	ErrInvalidConfidence = errors.New("invalid confidence")
	ErrInvalidThreshold  = errors.New("invalid threshold")
	ErrTypeMismatch      = errors.New("type mismatch")
)

// FieldChecker validates a candidate value against the field's declared type.
type FieldChecker interface {
	CheckField(field string, value any) error
}

type Options struct {
	Threshold float64
	// Checker is optional; without it every value is accepted as-is.
	Checker FieldChecker
}

func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold}
}

type Action string

const (
	ActionAdopted   Action = "adopted"
	ActionConfirmed Action = "confirmed"
	ActionRejected  Action = "rejected"
	ActionSkipped   Action = "skipped"
)

type FieldDecision struct {
	Field         string
	Action        Action
	HadValue      bool
	OldValue      any
	NewValue      any
	OldConfidence float64
	NewConfidence float64
	// Confidence is the stored confidence after the decision.
	Confidence float64
}

// Warning is a field that was skipped because its candidate value was unusable.
type Warning struct {
	Field string
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("field %q: %v", w.Field, w.Err)
}

type Result struct {
	Record    domain.Record
	Decisions []FieldDecision
	Warnings  []Warning
}

// Changed lists fields whose stored value changed, in field order.
func (r Result) Changed() []string { return r.fieldsWith(ActionAdopted) }

func (r Result) Confirmed() []string { return r.fieldsWith(ActionConfirmed) }

func (r Result) Rejected() []string { return r.fieldsWith(ActionRejected) }

func (r Result) fieldsWith(action Action) []string {
	var out []string
	for _, d := range r.Decisions {
		if d.Action == action {
			out = append(out, d.Field)
		}
	}
	return out
}

// Merge applies candidate onto existing. Neither input is modified.
//
// An out-of-range confidence on either side fails the whole call with
// ErrInvalidConfidence. A value rejected by opts.Checker only skips that
// field and is reported in Result.Warnings.
func Merge(existing, candidate domain.Record, opts Options) (Result, error) {
	if err := validateThreshold(opts.Threshold); err != nil {
		return Result{}, err
	}
	if err := validateConfidences("existing", existing.Confidence); err != nil {
		return Result{}, err
	}
	if err := validateConfidences("candidate", candidate.Confidence); err != nil {
		return Result{}, err
	}

	out := existing.Clone()
	res := Result{Record: out}

	for _, field := range sortedFields(candidate.Values) {
		newValue, err := Canonical(candidate.Values[field])
		if err == nil && opts.Checker != nil {
			err = opts.Checker.CheckField(field, newValue)
		}
		newConf := candidate.Confidence[field]
		oldValue, hadValue := out.Values[field]
		oldConf := out.Confidence[field]

		decision := FieldDecision{
			Field:         field,
			HadValue:      hadValue,
			OldValue:      oldValue,
			NewValue:      newValue,
			OldConfidence: oldConf,
			NewConfidence: newConf,
			Confidence:    oldConf,
		}
		if err != nil {
			decision.Action = ActionSkipped
			res.Warnings = append(res.Warnings, Warning{Field: field, Err: fmt.Errorf("%w: %v", ErrTypeMismatch, err)})
			res.Decisions = append(res.Decisions, decision)
			continue
		}

		switch {
		case Equal(oldValue, newValue):
			decision.Action = ActionConfirmed
			decision.Confidence = math.Max(oldConf, newConf)
			// An absent field agreeing with an explicit null becomes a stored null.
			out.Set(field, oldValue, decision.Confidence)
		case newConf >= opts.Threshold || newConf > oldConf:
			decision.Action = ActionAdopted
			decision.Confidence = newConf
			out.Set(field, newValue, newConf)
		default:
			decision.Action = ActionRejected
		}
		res.Decisions = append(res.Decisions, decision)
	}
	return res, nil
}

// Seed builds the first stored version of a record: every usable candidate
// field is taken with its own confidence.
func Seed(candidate domain.Record, opts Options) (Result, error) {
	if err := validateConfidences("candidate", candidate.Confidence); err != nil {
		return Result{}, err
	}
	out := domain.NewRecord()
	res := Result{Record: out}
	for _, field := range sortedFields(candidate.Values) {
		value, err := Canonical(candidate.Values[field])
		if err == nil && opts.Checker != nil {
			err = opts.Checker.CheckField(field, value)
		}
		conf := candidate.Confidence[field]
		decision := FieldDecision{Field: field, NewValue: value, NewConfidence: conf}
		if err != nil {
			decision.Action = ActionSkipped
			res.Warnings = append(res.Warnings, Warning{Field: field, Err: fmt.Errorf("%w: %v", ErrTypeMismatch, err)})
		} else {
			decision.Action = ActionAdopted
			decision.Confidence = conf
			out.Set(field, value, conf)
		}
		res.Decisions = append(res.Decisions, decision)
	}
	return res, nil
}

func validateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: %v (must be between 0 and 1)", ErrInvalidThreshold, t)
	}
	return nil
}

func validateConfidences(side string, confidences domain.Confidences) error {
	for _, field := range sortedFields(confidences) {
		c := confidences[field]
		if math.IsNaN(c) || c < 0 || c > 1 {
			return fmt.Errorf("%w: %s field %q has %v", ErrInvalidConfidence, side, field, c)
		}
	}
	return nil
}

func sortedFields[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
