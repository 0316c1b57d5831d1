package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/purrpouch/internal/models"
)

// GormDeliveryStore implements DeliveryStore on top of GORM.
type GormDeliveryStore struct {
	db *gorm.DB
}

// NewGormDeliveryStore constructs a GormDeliveryStore.
func NewGormDeliveryStore(db *gorm.DB) *GormDeliveryStore {
	return &GormDeliveryStore{db: db}
}

var _ DeliveryStore = (*GormDeliveryStore)(nil)

func (s *GormDeliveryStore) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	return s.db.WithContext(ctx).Create(delivery).Error
}

func (s *GormDeliveryStore) FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := s.db.WithContext(ctx).First(&delivery, "id = ?", id).Error; err != nil {
		return nil, translateDelivery(err)
	}
	return &delivery, nil
}

func (s *GormDeliveryStore) FindDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&delivery).Error; err != nil {
		return nil, translateDelivery(err)
	}
	return &delivery, nil
}

func (s *GormDeliveryStore) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.Delivery, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Delivery{})
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("scheduled_time asc").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var deliveries []models.Delivery
	if err := query.Find(&deliveries).Error; err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

func (s *GormDeliveryStore) CompareAndSetDeliveryStatus(ctx context.Context, id uuid.UUID, expected, next models.DeliveryStatus, deliveredAt *time.Time) (bool, error) {
	updates := map[string]any{"status": next}
	if deliveredAt != nil {
		updates["delivered_time"] = *deliveredAt
	}

	res := s.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func translateDelivery(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeliveryNotFound
	}
	return err
}
