package postgres

import (
	"context"
	"fmt"

	"adDecisioning/business/eventlog"
	"adDecisioning/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository persists the decisioning event log. Writes are
// idempotent on event_id so retried batches do not duplicate rows.
type EventRepository struct {
	DB *gorm.DB
}

var (
	_ eventlog.Writer           = (*EventRepository)(nil)
	_ eventlog.DeadLetterWriter = (*EventRepository)(nil)
)

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) WriteEvents(ctx context.Context, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	var (
		auctions []domain.AuctionEvent
		updates  []domain.BanditUpdateEvent
		causal   []domain.CausalEvent
	)
	for _, ev := range events {
		switch e := ev.(type) {
		case domain.AuctionEvent:
			auctions = append(auctions, e)
		case domain.BanditUpdateEvent:
			updates = append(updates, e)
		case domain.CausalEvent:
			causal = append(causal, e)
		default:
			return fmt.Errorf("unsupported event type %T", ev)
		}
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true})
		if len(auctions) > 0 {
			if err := tx.Create(&auctions).Error; err != nil {
				return fmt.Errorf("failed to insert auction events: %w", err)
			}
		}
		if len(updates) > 0 {
			if err := tx.Create(&updates).Error; err != nil {
				return fmt.Errorf("failed to insert bandit update events: %w", err)
			}
		}
		if len(causal) > 0 {
			if err := tx.Create(&causal).Error; err != nil {
				return fmt.Errorf("failed to insert causal events: %w", err)
			}
		}
		return nil
	})
}

func (r *EventRepository) WriteDeadLetters(ctx context.Context, letters []domain.DeadLetter) error {
	if len(letters) == 0 {
		return nil
	}
	if err := r.DB.WithContext(ctx).Create(&letters).Error; err != nil {
		return fmt.Errorf("failed to insert dead letters: %w", err)
	}
	return nil
}
