// Package store 持久化交易日志与每日汇总。日志只写不读回决策。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spotpilot/internal/pipeline"
	"spotpilot/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// TradeRecord 是一次完成尝试的日志行（timestamp, symbol, action, quantity, price, pnl 及结果）。
type TradeRecord struct {
	ID         int64          `gorm:"column:id;primaryKey" json:"id"`
	AttemptID  string         `gorm:"column:attempt_id;uniqueIndex" json:"attempt_id"`
	Timestamp  int64          `gorm:"column:timestamp;index" json:"timestamp"`
	Symbol     string         `gorm:"column:symbol;index" json:"symbol"`
	Action     string         `gorm:"column:action" json:"action"`
	Quantity   float64        `gorm:"column:quantity" json:"quantity"`
	Price      float64        `gorm:"column:price" json:"price"`
	PnL        float64        `gorm:"column:pnl" json:"pnl"`
	QuoteValue float64        `gorm:"column:quote_value" json:"quote_value"`
	FeeQuote   float64        `gorm:"column:fee_quote" json:"fee_quote"`
	Status     string         `gorm:"column:status;index" json:"status"`
	Reason     string         `gorm:"column:reason" json:"reason,omitempty"`
	OrderID    string         `gorm:"column:order_id" json:"order_id,omitempty"`
	Raw        datatypes.JSON `gorm:"column:raw;type:TEXT" json:"raw,omitempty"`
}

func (TradeRecord) TableName() string { return "trades" }

// DailySummary 按日累计。
type DailySummary struct {
	Day         string  `gorm:"column:day;primaryKey" json:"day"`
	Attempts    int     `gorm:"column:attempts" json:"attempts"`
	Trades      int     `gorm:"column:trades" json:"trades"`
	Rejections  int     `gorm:"column:rejections" json:"rejections"`
	Errors      int     `gorm:"column:errors" json:"errors"`
	Volume      float64 `gorm:"column:volume" json:"volume_quote"`
	Fees        float64 `gorm:"column:fees" json:"fees_quote"`
	RealizedPnL float64 `gorm:"column:realized_pnl" json:"realized_pnl"`
	UpdatedAt   int64   `gorm:"column:updated_at" json:"updated_at"`
}

func (DailySummary) TableName() string { return "daily_summaries" }

type Journal struct {
	db *gorm.DB
	tz time.Duration
}

// Open 打开（或创建）SQLite 日志库，使用纯 Go 的 modernc 驱动。
func Open(path string, tz time.Duration) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeRecord{}, &DailySummary{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return &Journal{db: db, tz: tz}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record 实现 pipeline.Sink。未产生结果的尝试（HOLD/WAIT）不记录。
func (j *Journal) Record(ctx context.Context, a pipeline.Attempt) error {
	if !a.Traded() {
		return nil
	}
	rec, err := toRecord(a)
	if err != nil {
		return err
	}
	day := j.day(a.Time)
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if ins.Error != nil {
			return fmt.Errorf("journal: insert trade: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			return nil
		}
		inc := DailySummary{Day: day, Attempts: 1, UpdatedAt: a.Time.UnixMilli()}
		switch {
		case a.Result.Success:
			inc.Trades = 1
			inc.Volume = a.Result.FilledQuote
			inc.Fees = a.Result.FeeQuote
			inc.RealizedPnL = rec.PnL
		case !a.Executed || a.Result.Status == types.StatusRejected:
			inc.Rejections = 1
		default:
			inc.Errors = 1
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"attempts":     gorm.Expr("attempts + ?", inc.Attempts),
				"trades":       gorm.Expr("trades + ?", inc.Trades),
				"rejections":   gorm.Expr("rejections + ?", inc.Rejections),
				"errors":       gorm.Expr("errors + ?", inc.Errors),
				"volume":       gorm.Expr("volume + ?", inc.Volume),
				"fees":         gorm.Expr("fees + ?", inc.Fees),
				"realized_pnl": gorm.Expr("realized_pnl + ?", inc.RealizedPnL),
				"updated_at":   inc.UpdatedAt,
			}),
		}).Create(&inc).Error
	})
}

// Recent 按时间倒序返回最近的日志行，symbol 为空表示全部。
func (j *Journal) Recent(ctx context.Context, sym string, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := j.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit)
	if sym != "" {
		q = q.Where("symbol = ?", strings.ToUpper(sym))
	}
	var out []TradeRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Summary 返回某日汇总；不存在时返回零值。
func (j *Journal) Summary(ctx context.Context, day string) (DailySummary, error) {
	var out DailySummary
	err := j.db.WithContext(ctx).Where("day = ?", day).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DailySummary{Day: day}, nil
	}
	return out, err
}

func (j *Journal) Summaries(ctx context.Context, limit int) ([]DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	var out []DailySummary
	err := j.db.WithContext(ctx).Order("day DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Day 返回 t 所在日（按配置时区偏移）的键。
func (j *Journal) Day(t time.Time) string { return j.day(t) }

func (j *Journal) day(t time.Time) string {
	return t.UTC().Add(j.tz).Format("2006-01-02")
}

func toRecord(a pipeline.Attempt) (TradeRecord, error) {
	res := a.Result
	rec := TradeRecord{
		AttemptID:  a.ID,
		Timestamp:  a.Time.UnixMilli(),
		Symbol:     a.Symbol,
		Action:     string(res.Side),
		Quantity:   res.FilledQty,
		Price:      res.AvgPrice,
		QuoteValue: res.FilledQuote,
		FeeQuote:   res.FeeQuote,
		Status:     string(res.Status),
		Reason:     res.Reason,
		OrderID:    res.OrderID,
	}
	if rec.Action == "" {
		rec.Action = string(a.Plan.Side)
	}
	if rec.Quantity == 0 {
		rec.Quantity = a.Plan.QtyBase
	}
	if rec.Price == 0 {
		rec.Price = a.Plan.EntryPrice
	}
	if pnl, ok := res.Raw["realized_pnl"].(float64); ok {
		rec.PnL = pnl
	}
	raw, err := json.Marshal(map[string]any{
		"state":  res.State,
		"error":  res.Error,
		"check":  a.Check,
		"plan":   a.Plan,
		"result": res.Raw,
	})
	if err != nil {
		return TradeRecord{}, fmt.Errorf("journal: encode raw: %w", err)
	}
	rec.Raw = datatypes.JSON(raw)
	return rec, nil
}
