package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	"github.com/frahmantamala/pos-payments/internal/order"
	orderPostgres "github.com/frahmantamala/pos-payments/internal/order/postgres"
)

var (
	seedTenant string
	seedCount  int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample pending orders",
	Long:  `Seed the database with pending orders for a tenant so callbacks can be replayed against them.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configDir)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(cfg.Database, sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearTenant(db, seedTenant); err != nil {
				log.Fatalf("failed to clear tenant %s: %v", seedTenant, err)
			}
			fmt.Println("Cleared orders and payment transactions for tenant:", seedTenant)
		}

		customers := []struct {
			Name  string
			Phone string
		}{
			{"Wanjiku Kamau", "+254712345678"},
			{"Otieno Odhiambo", "+254723456789"},
			{"Amina Hassan", "+254734567890"},
			{"", ""},
		}

		repo := orderPostgres.NewOrderRepository()
		for i := 1; i <= seedCount; i++ {
			number := fmt.Sprintf("T-%04d", i)

			var exists int64
			if err := db.Model(&orderDatamodel.Order{}).
				Where("tenant_id = ? AND order_number = ?", seedTenant, number).
				Count(&exists).Error; err != nil {
				log.Fatalf("failed to check order %s: %v", number, err)
			}
			if exists > 0 {
				fmt.Printf("order %s already exists; skipping\n", number)
				continue
			}

			customer := customers[(i-1)%len(customers)]
			o := &orderDatamodel.Order{
				ID:            uuid.NewString(),
				TenantID:      seedTenant,
				OrderNumber:   number,
				TotalAmount:   decimal.NewFromInt(int64(250 * i)).Add(decimal.RequireFromString("0.50")),
				Currency:      cfg.Payment.Currency,
				CustomerName:  customer.Name,
				CustomerPhone: customer.Phone,
				PaymentStatus: order.PaymentStatusPending,
				Status:        order.StatusPending,
				PaymentDetails: map[string]interface{}{
					"table": fmt.Sprintf("T%d", i),
				},
			}

			if err := repo.Create(db, o); err != nil {
				log.Fatalf("failed to insert order %s: %v", number, err)
			}
			fmt.Printf("Seeded order %s id=%s amount=%s %s\n", number, o.ID, o.TotalAmount.StringFixed(2), o.Currency)
		}
	},
}

func clearTenant(db *gorm.DB, tenantID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&ledgerDatamodel.PaymentTransaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id IN (?)", tx.Model(&orderDatamodel.Order{}).Select("id").Where("tenant_id = ?", tenantID)).
			Delete(&orderDatamodel.OrderStatusChange{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ?", tenantID).Delete(&orderDatamodel.Order{}).Error
	})
}

func init() {
	seedCmd.Flags().StringVar(&seedTenant, "tenant", "demo-tenant", "Tenant the seeded orders belong to")
	seedCmd.Flags().IntVar(&seedCount, "count", 5, "Number of pending orders to create")
}
