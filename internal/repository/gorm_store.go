package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/purrpouch/internal/models"
)

// GormOrderStore implements OrderStore on top of GORM.
type GormOrderStore struct {
	db *gorm.DB
}

// NewGormOrderStore constructs a GormOrderStore.
func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db}
}

func (s *GormOrderStore) Create(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderEvent{
			OrderID:  order.ID,
			ToStatus: order.Status,
			Source:   models.EventSourceCheckout,
		}).Error
	})
}

func (s *GormOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *GormOrderStore) FindByCorrelationToken(ctx context.Context, token string) (*models.Order, error) {
	if token == "" {
		return nil, ErrOrderNotFound
	}

	var order models.Order
	if err := s.db.WithContext(ctx).
		Where("correlation_token = ?", token).
		First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// CompareAndSetStatus issues a single conditional UPDATE and records the
// event in the same transaction when exactly one row changed.
func (s *GormOrderStore) CompareAndSetStatus(ctx context.Context, t Transition) (bool, error) {
	metadata, err := encodeMetadata(t.Metadata)
	if err != nil {
		return false, err
	}

	var swapped bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", t.OrderID, t.Expected).
			Update("status", t.Next)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		if err := tx.Create(&models.OrderEvent{
			OrderID:    t.OrderID,
			FromStatus: t.Expected,
			ToStatus:   t.Next,
			Source:     t.Source,
			Metadata:   metadata,
		}).Error; err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *GormOrderStore) ListByUser(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", filter.UserID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Items").Order("created_at desc").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *GormOrderStore) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormOrderStore) FindRecurringDue(ctx context.Context, until time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Where("is_recurring = ? AND next_delivery_date IS NOT NULL AND next_delivery_date <= ?", true, until).
		Where("status NOT IN ?", []models.OrderStatus{models.OrderStatusCancelled, models.OrderStatusFailed}).
		Order("next_delivery_date asc").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *GormOrderStore) SpawnRecurring(ctx context.Context, parentID uuid.UUID, seq int, next time.Time, child *models.Order) (bool, error) {
	var spawned bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND recurrence_seq = ?", parentID, seq).
			Updates(map[string]any{
				"next_delivery_date": next,
				"recurrence_seq":     seq + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		if err := tx.Create(child).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.OrderEvent{
			OrderID:  child.ID,
			ToStatus: child.Status,
			Source:   models.EventSourceRecurring,
		}).Error; err != nil {
			return err
		}
		spawned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return spawned, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	return err
}

func encodeMetadata(metadata map[string]any) (datatypes.JSON, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
