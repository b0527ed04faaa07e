package snapshots

import (
	"context"

	"wpsnapshots/internal/errs"
)

// Push uploads a cached snapshot and then records its metadata.
//
// The metadata record is only written after every artifact upload has been
// confirmed, so a failed or cancelled push never leaves a record pointing at
// missing objects. The reverse can happen: when the insert fails the
// uploaded objects stay in the bucket without a record.
func (s *Service) Push(ctx context.Context, snap *Snapshot, progress ProgressFunc) error {
	if snap.Remote {
		return errs.Conflictf(errs.CodeAlreadyPushed, "snapshot %s has already been pushed", snap.ID)
	}
	if err := snap.Meta.Validate(); err != nil {
		return err
	}

	repo, db, store, err := s.remote(snap.Repository)
	if err != nil {
		return err
	}

	if _, err := db.Get(ctx, snap.ID); err == nil {
		snap.Remote = true
		snap.State = Remote
		return errs.Conflictf(errs.CodeAlreadyPushed, "snapshot %s already exists in repository %s", snap.ID, repo.Name())
	} else if !errs.Is(err, errs.NotFound) {
		return errs.WithOp("push", err)
	}

	s.logger.Info("uploading snapshot", "id", snap.ID, "repository", repo.Name())
	if err := store.PutSnapshot(ctx, snap.Meta, s.cache.Path(snap.ID), progress); err != nil {
		return errs.WithOp("push", err)
	}

	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeCancelled, err,
			"push of %s cancelled after upload; no metadata record was written", snap.ID)
	}

	inserted, err := db.Insert(ctx, snap.Meta)
	if err != nil {
		s.logger.Error("metadata insert failed after upload", "id", snap.ID, "error", err)
		return errs.Wrap(errs.PartialFailure, "", err,
			"snapshot %s was uploaded but its metadata record was not written", snap.ID)
	}

	snap.Meta.Time = inserted.Time
	snap.Remote = true
	snap.State = Remote
	s.logger.Info("snapshot pushed", "id", snap.ID, "repository", repo.Name())
	return nil
}
