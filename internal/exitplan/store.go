package exitplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type planModel struct {
	Symbol          string         `gorm:"column:symbol;primaryKey"`
	Side            string         `gorm:"column:side"`
	Size            float64        `gorm:"column:size"`
	EntryPrice      float64        `gorm:"column:entry_price"`
	TargetPrice     float64        `gorm:"column:target_price"`
	StopPrice       float64        `gorm:"column:stop_price"`
	PriceAtCreation float64        `gorm:"column:price_at_creation"`
	TargetPnl       float64        `gorm:"column:target_pnl"`
	StopPnl         float64        `gorm:"column:stop_pnl"`
	RiskRewardRatio float64        `gorm:"column:risk_reward_ratio"`
	Status          string         `gorm:"column:status"`
	ConditionsJSON  datatypes.JSON `gorm:"column:conditions_json;type:TEXT"`
	CreatedAt       int64          `gorm:"column:created_at"`
	CheckedAt       int64          `gorm:"column:checked_at"`
}

func (planModel) TableName() string { return "exit_plans" }

// Store persists exit plans so a restart does not drop active exit intent.
// The in-memory table is the source of truth at runtime; the store is
// write-through on create/overwrite/delete and read once at startup.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (and migrates) the plan database at path.
func OpenStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("exit plan store requires a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open exit plan store: %w", err)
	}
	if err := db.AutoMigrate(&planModel{}); err != nil {
		return nil, fmt.Errorf("migrate exit plan store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the plan keyed by symbol.
func (s *Store) Save(ctx context.Context, plan *Plan) error {
	if s == nil || s.db == nil {
		return nil
	}
	model, err := toModel(plan)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"side", "size", "entry_price", "target_price", "stop_price",
				"price_at_creation", "target_pnl", "stop_pnl", "risk_reward_ratio",
				"status", "conditions_json", "created_at", "checked_at",
			}),
		}).
		Create(model).Error
}

// Delete removes the plan for symbol; deleting an absent plan is not an
// error here, the table owns not-found semantics.
func (s *Store) Delete(ctx context.Context, symbol string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Delete(&planModel{}).Error
}

// All loads every persisted plan, for hydration at startup.
func (s *Store) All(ctx context.Context) ([]*Plan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var models []planModel
	if err := s.db.WithContext(ctx).Order("symbol").Find(&models).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load exit plans: %w", err)
	}
	plans := make([]*Plan, 0, len(models))
	for i := range models {
		plan, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func toModel(plan *Plan) (*planModel, error) {
	raw, err := json.Marshal(plan.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	m := &planModel{
		Symbol:          plan.Symbol,
		Side:            plan.Side,
		Size:            plan.Size,
		EntryPrice:      plan.EntryPrice,
		TargetPrice:     plan.TargetPrice,
		StopPrice:       plan.StopPrice,
		PriceAtCreation: plan.PriceAtCreation,
		TargetPnl:       plan.TargetPnl,
		StopPnl:         plan.StopPnl,
		RiskRewardRatio: plan.RiskRewardRatio,
		Status:          plan.Status,
		ConditionsJSON:  datatypes.JSON(raw),
		CreatedAt:       plan.CreatedAt.Unix(),
	}
	if !plan.CheckedAt.IsZero() {
		m.CheckedAt = plan.CheckedAt.Unix()
	}
	return m, nil
}

func fromModel(m *planModel) (*Plan, error) {
	plan := &Plan{
		Symbol:          m.Symbol,
		Side:            m.Side,
		Size:            m.Size,
		EntryPrice:      m.EntryPrice,
		TargetPrice:     m.TargetPrice,
		StopPrice:       m.StopPrice,
		PriceAtCreation: m.PriceAtCreation,
		TargetPnl:       m.TargetPnl,
		StopPnl:         m.StopPnl,
		RiskRewardRatio: m.RiskRewardRatio,
		Status:          m.Status,
		CreatedAt:       time.Unix(m.CreatedAt, 0),
	}
	if m.CheckedAt > 0 {
		plan.CheckedAt = time.Unix(m.CheckedAt, 0)
	}
	if len(m.ConditionsJSON) > 0 {
		if err := json.Unmarshal(m.ConditionsJSON, &plan.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for %s: %w", m.Symbol, err)
		}
	}
	return plan, nil
}
