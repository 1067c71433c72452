package database

import (
	"gorm.io/gorm"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Order{},
		&domain.Transaction{},
		&domain.OrderNote{},
		&domain.OrderStatusTransition{},
		&domain.CustomerLink{},
		&domain.WebhookEventRecord{},
	)
}
