package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/model"
)

// ErrNotProcessed is returned when confirming a row that has not been resolved.
var ErrNotProcessed = eris.New("temp row not processed")

// Confirm accepts the candidate at index on a processed row. The matched
// Factory gains the row's Source and a Confirm record is written. Confirming
// the same candidate twice returns the existing record.
func (p *Pipeline) Confirm(ctx context.Context, tempID string, index int) (*model.Confirm, error) {
	t, err := p.store.GetTemp(ctx, tempID)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: confirm %s", tempID)
	}
	if !t.IsProcessed() {
		return nil, eris.Wrapf(ErrNotProcessed, "ingest: confirm %s", tempID)
	}
	if index < 0 || index >= len(t.Matches) {
		return nil, eris.Wrapf(model.ErrNotFound, "ingest: temp %s has no match %d", tempID, index)
	}
	m := t.Matches[index]

	existing, err := p.store.FindConfirm(ctx, tempID, m.FactoryID)
	switch {
	case err == nil:
		return existing, nil
	case !eris.Is(err, model.ErrNotFound):
		return nil, eris.Wrapf(err, "ingest: confirm %s", tempID)
	}

	// Idempotent writes first so a failed call can simply be repeated.
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.AddFactorySource(ctx, m.FactoryID, t.SourceID)
	}); err != nil {
		return nil, eris.Wrapf(err, "ingest: attach source to factory %s", m.FactoryID)
	}
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.SetMatchConfirmed(ctx, tempID, index)
	}); err != nil {
		return nil, eris.Wrapf(err, "ingest: mark match %d", index)
	}

	now := p.now()
	c, err := p.store.CreateConfirm(ctx, model.Confirm{
		ClaimedName:    t.Row.Name,
		ClaimedAddress: t.Row.Address,
		SourceID:       t.SourceID,
		TempID:         t.ID,
		FactoryID:      m.FactoryID,
		AddressID:      m.AddressID,
		MatchedID:      m.FactoryID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: create confirm for %s", tempID)
	}
	zap.L().Info("ingest: match confirmed",
		zap.String("temp_id", tempID),
		zap.String("factory_id", m.FactoryID),
		zap.String("source_id", t.SourceID),
	)
	return c, nil
}
