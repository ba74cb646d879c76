package margin

import (
	"context"
	"fmt"
)

// Policy selects how a minimum-margin violation is enforced.
type Policy string

const (
	// PolicyWarn lets the user proceed once the warning key is acknowledged.
	PolicyWarn Policy = "warn"
	// PolicyBlock always rejects the save.
	PolicyBlock Policy = "block"
)

// ParsePolicy parses a policy name; an empty string yields PolicyWarn.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyWarn:
		return PolicyWarn, nil
	case PolicyBlock:
		return PolicyBlock, nil
	}
	return "", fmt.Errorf("unknown minimum margin policy %q", s)
}

// WarningKey is the acknowledgment key of the minimum-margin warning for a line.
func WarningKey(lineID string) string {
	return "minimum_margin_" + lineID
}

// Warnings is the set of warning keys acknowledged within one unit of work.
type Warnings struct {
	acknowledged map[string]struct{}
}

func NewWarnings(keys ...string) *Warnings {
	w := &Warnings{acknowledged: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		w.Acknowledge(k)
	}
	return w
}

func (w *Warnings) Acknowledge(key string) {
	if key == "" {
		return
	}
	w.acknowledged[key] = struct{}{}
}

func (w *Warnings) Acknowledged(key string) bool {
	if w == nil {
		return false
	}
	_, ok := w.acknowledged[key]
	return ok
}

// Validator enforces the minimum margin of a line's category.
type Validator struct {
	policy   Policy
	warnings *Warnings
}

func NewValidator(policy Policy, warnings *Warnings) *Validator {
	if warnings == nil {
		warnings = NewWarnings()
	}
	return &Validator{policy: policy, warnings: warnings}
}

// Warnings returns the acknowledgment set the validator consults.
func (v *Validator) Warnings() *Warnings {
	return v.warnings
}

// Check returns a *MinimumMarginViolation when the line percent is below
// the type minimum, unless the policy is warn and the line's warning key was
// already acknowledged.
func (v *Validator) Check(l Line, t Type) error {
	if !l.MarginPercent.LessThan(t.MinimumPercent) {
		return nil
	}

	key := WarningKey(l.ID)
	dismissible := v.policy != PolicyBlock
	if dismissible && v.warnings.Acknowledged(key) {
		return nil
	}

	return &MinimumMarginViolation{
		LineID:      l.ID,
		TypeName:    t.Name,
		Percent:     l.MarginPercent,
		Minimum:     t.MinimumPercent,
		Key:         key,
		Dismissible: dismissible,
	}
}

type resetKey struct{}

type ackKey struct{}

// WithReset marks ctx as running inside a reset, the only path allowed to
// delete system lines.
func WithReset(ctx context.Context) context.Context {
	return context.WithValue(ctx, resetKey{}, true)
}

// InReset reports whether ctx was marked by WithReset.
func InReset(ctx context.Context) bool {
	v, _ := ctx.Value(resetKey{}).(bool)
	return v
}

// CheckDelete rejects deleting a system line outside a reset.
func CheckDelete(ctx context.Context, l Line) error {
	if l.System && !InReset(ctx) {
		return &SystemLineDeletionRejected{LineID: l.ID}
	}
	return nil
}

// WithAcknowledged attaches warning keys the caller has already dismissed.
func WithAcknowledged(ctx context.Context, keys ...string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	prev := AcknowledgedFrom(ctx)
	all := make([]string, 0, len(prev)+len(keys))
	all = append(all, prev...)
	all = append(all, keys...)
	return context.WithValue(ctx, ackKey{}, all)
}

// AcknowledgedFrom returns the warning keys attached by WithAcknowledged.
func AcknowledgedFrom(ctx context.Context) []string {
	keys, _ := ctx.Value(ackKey{}).([]string)
	return keys
}
