package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/model"
)

// ReconcileSources merges Sources that share an uploader and name key. The
// oldest Source survives, absorbing every duplicate's files and taking the
// most recently updated display name. It returns the number of Sources removed.
func (p *Pipeline) ReconcileSources(ctx context.Context) (int, error) {
	groups, err := p.store.DuplicateSources(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: list duplicate sources")
	}

	var removed int
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keep, dupIDs := collapse(group)
		if err := p.store.MergeSources(ctx, keep, dupIDs); err != nil {
			return removed, eris.Wrapf(err, "ingest: merge into source %s", keep.ID)
		}
		removed += len(dupIDs)
		zap.L().Warn("ingest: merged duplicate sources",
			zap.String("keep_id", keep.ID),
			zap.Strings("duplicate_ids", dupIDs),
			zap.Error(model.ErrConcurrentSourceCreation),
		)
	}
	p.metrics.AddSourcesMerged(removed)
	return removed, nil
}

// collapse folds a group (oldest first) into its survivor.
func collapse(group []model.Source) (model.Source, []string) {
	keep := group[0]
	keep.Files = append([]model.UploadFile(nil), keep.Files...)
	latest := keep.UpdatedAt
	dupIDs := make([]string, 0, len(group)-1)
	for _, s := range group[1:] {
		dupIDs = append(dupIDs, s.ID)
		for _, f := range s.Files {
			keep.AppendFile(f)
		}
		if s.UpdatedAt.After(latest) {
			latest = s.UpdatedAt
			keep.Name = s.Name
		}
	}
	keep.UpdatedAt = latest
	return keep, dupIDs
}
