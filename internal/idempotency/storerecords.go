package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pacelog/pacelog/internal/adapters/store"
	"github.com/pacelog/pacelog/internal/domain/model"
)

const recordKeyPrefix = "idem/"

// StoreRecords keeps idempotency records in the transactional document
// store. The claim runs inside one transaction, so concurrent claims on
// a key serialize against each other.
type StoreRecords struct {
	store store.Store
}

// NewStoreRecords creates a RecordStore over the document store.
func NewStoreRecords(st store.Store) *StoreRecords {
	return &StoreRecords{store: st}
}

func recordKey(key string) string {
	return recordKeyPrefix + key
}

// Claim implements the atomic claim phase against the record document.
func (r *StoreRecords) Claim(ctx context.Context, key string, request json.RawMessage, p Policy) (ClaimResult, error) {
	var result ClaimResult

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var rec model.IdempotencyRecord
		err := tx.Get(ctx, recordKey(key), &rec)

		switch {
		case errors.Is(err, store.ErrNotFound):
			result = ClaimResult{Outcome: ClaimAcquired}
			return tx.Set(ctx, recordKey(key), freshRecord(key, request, p))

		case err != nil:
			return err
		}

		if rec.Expired(p.Now) {
			// Expired records are treated as absent for claim purposes.
			result = ClaimResult{Outcome: ClaimAcquired}
			return tx.Set(ctx, recordKey(key), freshRecord(key, request, p))
		}

		switch rec.Status {
		case model.IdempotencyCompleted:
			result = ClaimResult{Outcome: ClaimReplay, Response: rec.Response}
			return nil

		case model.IdempotencyFailed:
			result = ClaimResult{Outcome: ClaimFailed, ErrorDetail: rec.ErrorDetail}
			return nil

		case model.IdempotencyProcessing:
			if p.Now.Sub(rec.ProcessingStartedAt) <= p.Timeout {
				result = ClaimResult{Outcome: ClaimConflict}
				return nil
			}
			// Abandoned claim: bound the lock duration to the timeout.
			result = ClaimResult{Outcome: ClaimAcquired, TakenOver: true}
			return tx.Set(ctx, recordKey(key), freshRecord(key, request, p))

		default:
			return fmt.Errorf("record %s has unknown status %q", key, rec.Status)
		}
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

// Complete finalizes the record with the cached response.
func (r *StoreRecords) Complete(ctx context.Context, key string, response json.RawMessage) error {
	return r.finalize(ctx, key, func(rec *model.IdempotencyRecord) {
		rec.Status = model.IdempotencyCompleted
		rec.Response = response
	})
}

// Fail finalizes the record with the failure detail.
func (r *StoreRecords) Fail(ctx context.Context, key string, detail string) error {
	return r.finalize(ctx, key, func(rec *model.IdempotencyRecord) {
		rec.Status = model.IdempotencyFailed
		rec.ErrorDetail = detail
	})
}

func (r *StoreRecords) finalize(ctx context.Context, key string, mutate func(*model.IdempotencyRecord)) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var rec model.IdempotencyRecord
		if err := tx.Get(ctx, recordKey(key), &rec); err != nil {
			return err
		}
		mutate(&rec)
		return tx.Set(ctx, recordKey(key), &rec)
	})
}

func freshRecord(key string, request json.RawMessage, p Policy) *model.IdempotencyRecord {
	return &model.IdempotencyRecord{
		Key:                 key,
		Request:             request,
		Status:              model.IdempotencyProcessing,
		CreatedAt:           p.Now,
		ProcessingStartedAt: p.Now,
		ExpiresAt:           p.Now.Add(p.TTL),
	}
}
