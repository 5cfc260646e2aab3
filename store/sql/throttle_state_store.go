// Package sqlstore persists throttle state in SQL so suppression windows
// survive process restarts.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-attest/throttle"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ThrottleStateStore struct {
	db   *bun.DB
	repo repository.Repository[*throttleStateRecord]
}

func NewThrottleStateStore(db *bun.DB) (*ThrottleStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*throttleStateRecord](db, throttleStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid throttle state repository wiring: %w", err)
		}
	}
	return &ThrottleStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *ThrottleStateStore) Get(ctx context.Context, key throttle.Key) (throttle.State, error) {
	if s == nil || s.db == nil {
		return throttle.State{}, fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	key = normalizeThrottleKey(key)
	if err := validateThrottleKey(key); err != nil {
		return throttle.State{}, err
	}

	record := &throttleStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.app_id = ?", key.AppID).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return throttle.State{}, throttle.ErrStateNotFound
		}
		return throttle.State{}, err
	}
	return record.toDomain(), nil
}

func (s *ThrottleStateStore) Upsert(ctx context.Context, state throttle.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	state.Key = normalizeThrottleKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findThrottleStateTx(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := false
		if record == nil {
			created = true
			record = &throttleStateRecord{
				ID:         uuid.NewString(),
				ProviderID: state.Key.ProviderID,
				AppID:      state.Key.AppID,
				CreatedAt:  state.UpdatedAt.UTC(),
			}
		}
		record.ProviderID = state.Key.ProviderID
		record.AppID = state.Key.AppID
		record.BackoffCount = state.BackoffCount
		record.AllowAfter = state.AllowAfter.UTC()
		record.HTTPStatus = state.HTTPStatus
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			return nil
		}
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (s *ThrottleStateStore) Clear(ctx context.Context, key throttle.Key) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	key = normalizeThrottleKey(key)
	if err := validateThrottleKey(key); err != nil {
		return err
	}
	_, err := s.db.NewDelete().
		Model((*throttleStateRecord)(nil)).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.app_id = ?", key.AppID).
		Exec(ctx)
	return err
}

func (r *throttleStateRecord) toDomain() throttle.State {
	if r == nil {
		return throttle.State{}
	}
	return throttle.State{
		Key: throttle.Key{
			ProviderID: r.ProviderID,
			AppID:      r.AppID,
		},
		BackoffCount: r.BackoffCount,
		AllowAfter:   r.AllowAfter.UTC(),
		HTTPStatus:   r.HTTPStatus,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func findThrottleStateTx(
	ctx context.Context,
	tx bun.Tx,
	key throttle.Key,
) (*throttleStateRecord, error) {
	record := &throttleStateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.app_id = ?", key.AppID).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeThrottleKey(key throttle.Key) throttle.Key {
	return throttle.Key{
		ProviderID: strings.TrimSpace(strings.ToLower(key.ProviderID)),
		AppID:      strings.TrimSpace(key.AppID),
	}
}

func validateThrottleKey(key throttle.Key) error {
	if strings.TrimSpace(key.ProviderID) == "" {
		return fmt.Errorf("sqlstore: throttle provider id is required")
	}
	if strings.TrimSpace(key.AppID) == "" {
		return fmt.Errorf("sqlstore: throttle app id is required")
	}
	return nil
}
