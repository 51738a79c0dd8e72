package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	orderpkg "github.com/frahmantamala/pos-payments/internal/order"
)

type OrderRepository struct{}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

var _ orderpkg.RepositoryAPI = (*OrderRepository)(nil)

// FindByID loads the order and locks its row for the rest of tx.
func (r *OrderRepository) FindByID(tx *gorm.DB, id string) (*orderDatamodel.Order, error) {
	var o orderDatamodel.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderpkg.ErrOrderNotFound.WithCause(fmt.Errorf("order %s", id))
		}
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepository) Save(tx *gorm.DB, o *orderDatamodel.Order) error {
	if err := tx.Save(o).Error; err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) AdvanceStatus(tx *gorm.DB, o *orderDatamodel.Order, next, actorID, note string) error {
	if !orderpkg.CanTransition(o.Status, next) {
		return orderpkg.ErrInvalidStatusTransition.WithCause(fmt.Errorf("%s -> %s", o.Status, next))
	}

	change := &orderDatamodel.OrderStatusChange{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   next,
		ActorID:    actorID,
		Note:       note,
	}

	res := tx.Model(&orderDatamodel.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Update("status", next)
	if res.Error != nil {
		return fmt.Errorf("advance order %s: %w", o.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return orderpkg.ErrInvalidStatusTransition.WithCause(fmt.Errorf("order %s left status %s concurrently", o.ID, o.Status))
	}

	if err := tx.Create(change).Error; err != nil {
		return fmt.Errorf("record status change for order %s: %w", o.ID, err)
	}

	o.Status = next
	return nil
}

func (r *OrderRepository) Create(tx *gorm.DB, o *orderDatamodel.Order) error {
	return tx.Create(o).Error
}

func (r *OrderRepository) ListStatusChanges(tx *gorm.DB, orderID string) ([]*orderDatamodel.OrderStatusChange, error) {
	var changes []*orderDatamodel.OrderStatusChange
	err := tx.Where("order_id = ?", orderID).Order("id ASC").Find(&changes).Error
	return changes, err
}
