package main

import (
	"time"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加演示店铺
	stores := []models.Store{
		{
			Name:            "Aurora Books",
			Currency:        "USD",
			FeeRate:         models.MustRate("2.9"),
			MinPayoutAmount: 0,
			IsActive:        true,
		},
		{
			Name:            "Nimbus Gadgets",
			Currency:        "USD",
			FeeRate:         models.MustRate("3.4"),
			MinPayoutAmount: 50000,
			IsActive:        true,
		},
	}

	for i := range stores {
		store := &stores[i]
		var existing models.Store
		if err := models.DB.Where("name = ?", store.Name).First(&existing).Error; err == nil {
			stdLog.Printf("Store already exists: %s", store.Name)
			stores[i] = existing
			continue
		}
		if err := models.DB.Create(store).Error; err != nil {
			stdLog.Printf("Failed to create store %s: %v", store.Name, err)
			continue
		}
		stdLog.Printf("Created store: %s (id=%d)", store.Name, store.ID)
	}

	// 为店铺绑定已过审的银行账户
	now := time.Now()
	accounts := []models.StoreBankAccount{
		{
			StoreID:       stores[0].ID,
			HolderName:    "Aurora Books LLC",
			BankCode:      "021000021",
			AccountNumber: "000123456789",
			KYCStatus:     constants.BankAccountKYCVerified,
			VerifiedAt:    &now,
		},
		{
			StoreID:       stores[1].ID,
			HolderName:    "Nimbus Gadgets Inc",
			BankCode:      "026009593",
			AccountNumber: "000987654321",
			KYCStatus:     constants.BankAccountKYCVerified,
			VerifiedAt:    &now,
		},
	}

	for _, account := range accounts {
		if account.StoreID == 0 {
			continue
		}
		var existing models.StoreBankAccount
		if err := models.DB.Where("store_id = ?", account.StoreID).First(&existing).Error; err == nil {
			stdLog.Printf("Bank account already exists for store %d", account.StoreID)
			continue
		}
		if err := models.DB.Create(&account).Error; err != nil {
			stdLog.Printf("Failed to create bank account for store %d: %v", account.StoreID, err)
			continue
		}
		stdLog.Printf("Created bank account for store %d", account.StoreID)
	}

	// 初始化默认运营账号
	if err := models.InitDefaultOperator("", ""); err != nil {
		stdLog.Printf("Failed to init default operator: %v", err)
	}

	stdLog.Println("Seed finished")
}
