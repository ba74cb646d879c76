package costplan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/margin"
)

// Ledger applies margin-line rules within one unit of work. Every write to a
// line goes through SaveLine or DeleteLine so validation and the deletion
// guard cannot be skipped.
type Ledger struct {
	repos     Repos
	registry  *margin.Registry
	validator *margin.Validator
	digits    int32
	log       *zap.Logger
	now       func() time.Time

	types map[string]*margin.Type
}

func NewLedger(repos Repos, registry *margin.Registry, validator *margin.Validator, digits int32, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		repos:     repos,
		registry:  registry,
		validator: validator,
		digits:    digits,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		types:     make(map[string]*margin.Type),
	}
}

func (l *Ledger) loadType(ctx context.Context, typeID string) (*margin.Type, error) {
	if t, ok := l.types[typeID]; ok {
		return t, nil
	}
	t, err := l.repos.Types.Get(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("load margin type %s: %w", typeID, err)
	}
	l.types[typeID] = t
	return t, nil
}

// SaveLine validates a line against its type minimum and persists it.
// Updates that keep the stored percent skip the minimum check. New lines get
// an ID before validation so the warning key is stable.
func (l *Ledger) SaveLine(ctx context.Context, line *margin.Line, create bool) error {
	t, err := l.loadType(ctx, line.TypeID)
	if err != nil {
		return err
	}

	if create && line.ID == "" {
		line.ID = uuid.NewString()
	}
	line.MarginPercent = margin.NormalizePercent(line.MarginPercent)

	check := true
	if !create {
		stored, err := l.repos.Lines.Get(ctx, line.ID)
		if err != nil {
			return err
		}
		// An unchanged percent was accepted when it was last saved.
		check = !stored.MarginPercent.Equal(line.MarginPercent)
	}
	if check {
		if err := l.validator.Check(*line, *t); err != nil {
			return err
		}
	}

	now := l.now()
	line.UpdatedAt = now
	if create {
		line.CreatedAt = now
		return l.repos.Lines.Create(ctx, line)
	}
	return l.repos.Lines.Update(ctx, line)
}

// DeleteLine removes a line; system lines are only removed inside a reset.
func (l *Ledger) DeleteLine(ctx context.Context, line *margin.Line) error {
	if err := margin.CheckDelete(ctx, *line); err != nil {
		return err
	}
	return l.repos.Lines.Delete(ctx, line.ID)
}

func nextSequence(lines []*margin.Line) int {
	next := 0
	for _, ln := range lines {
		if ln.Sequence >= next {
			next = ln.Sequence + 1
		}
	}
	return next
}
