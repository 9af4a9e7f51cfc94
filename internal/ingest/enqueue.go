package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/match"
	"github.com/sells-group/facility-registry/internal/metrics"
	"github.com/sells-group/facility-registry/internal/model"
)

// Upload is one contributor file to enqueue.
type Upload struct {
	UploaderID   string
	UploaderName string
	UserType     string
	File         model.UploadFile
	Rows         []model.RawRow
}

// Skipped is a row rejected before enqueueing.
type Skipped struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
	// Reason is Err's message, kept for serialization.
	Reason string `json:"reason"`
}

// EnqueueResult summarizes an Enqueue call.
type EnqueueResult struct {
	FileID   string    `json:"file_id"`
	Enqueued int       `json:"enqueued"`
	Skipped  []Skipped `json:"skipped"`
}

// Enqueue validates rows and stores the valid ones as Unprocessed Temps.
// Rows keep their upload order through strictly increasing CreatedAt.
func (p *Pipeline) Enqueue(ctx context.Context, u Upload) (*EnqueueResult, error) {
	if u.UploaderID == "" {
		return nil, model.MissingField("uploader_id")
	}
	if u.UploaderName == "" {
		return nil, model.MissingField("uploader_name")
	}
	if u.UserType == "" {
		u.UserType = model.UserTypeContributor
	}
	if !model.ValidUserType(u.UserType) {
		return nil, model.InvalidField("user_type", u.UserType)
	}
	now := p.now()
	if u.File.ID == "" {
		u.File.ID = uuid.NewString()
	}
	if u.File.UploadedAt.IsZero() {
		u.File.UploadedAt = now
	}

	res := &EnqueueResult{FileID: u.File.ID, Skipped: []Skipped{}}
	temps := make([]model.Temp, 0, len(u.Rows))
	for i, row := range u.Rows {
		q := match.Query{Country: row.Country, Name: row.Name, Address: row.Address}
		if err := q.Validate(); err != nil {
			res.Skipped = append(res.Skipped, Skipped{Index: i, Err: err, Reason: err.Error()})
			continue
		}
		at := now.Add(time.Duration(i) * time.Microsecond)
		temps = append(temps, model.Temp{
			ID:           uuid.NewString(),
			UploaderID:   u.UploaderID,
			UploaderName: u.UploaderName,
			UserType:     u.UserType,
			File:         u.File,
			Row:          row,
			Matches:      []model.TempMatch{},
			Status:       model.TempUnprocessed,
			CreatedAt:    at,
			UpdatedAt:    at,
		})
	}

	if len(temps) > 0 {
		if err := p.store.EnqueueTemps(ctx, temps); err != nil {
			return nil, eris.Wrapf(err, "ingest: enqueue file %s", u.File.ID)
		}
	}
	res.Enqueued = len(temps)
	p.metrics.AddRows(metrics.OutcomeSkipped, len(res.Skipped))

	zap.L().Info("ingest: enqueued upload",
		zap.String("uploader_id", u.UploaderID),
		zap.String("file_id", u.File.ID),
		zap.Int("enqueued", res.Enqueued),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// Reclaim returns rows stuck in Processing longer than the processing
// timeout to Unprocessed.
func (p *Pipeline) Reclaim(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.opts.ProcessingTimeout)
	n, err := p.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: reclaim")
	}
	if n > 0 {
		zap.L().Warn("ingest: reclaimed stalled rows",
			zap.Int("count", n),
			zap.Time("claimed_before", cutoff),
			zap.Error(model.ErrStuckProcessing),
		)
	}
	p.metrics.AddReclaimed(n)
	return n, nil
}
