// Package journal persists order lifecycle updates to a database off the
// coordinator thread.
package journal

import (
	"time"

	"tradecore/internal/og"
	"tradecore/internal/schema"
)

// OrderRow is one recorded lifecycle transition.
type OrderRow struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"type:uuid;index:idx_order_updates_run_order,priority:1;not null"`
	OrderID   uint32    `gorm:"index:idx_order_updates_run_order,priority:2;not null"`
	Account   string    `gorm:"size:32"`
	Venue     string    `gorm:"size:16;not null"`
	Symbol    string    `gorm:"size:16;not null"`
	Side      string    `gorm:"size:4;not null"`
	Tag       string    `gorm:"size:16;not null"`
	Result    string    `gorm:"size:24"`
	Size      int64     `gorm:"not null"`
	Shares    int64     `gorm:"not null"`
	Filled    int64     `gorm:"not null"`
	Canceled  int64     `gorm:"not null"`
	Price     int64     `gorm:"not null"`
	Liquidity uint8     `gorm:"not null"`
	ExecID    uint64    `gorm:"not null;default:0"`
	Synthetic bool      `gorm:"not null;default:false"`
	EventTime time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (OrderRow) TableName() string {
	return "order_updates"
}

func newOrderRow(runID string, reg *schema.Registry, o *og.Order, u og.OrderUpdate) OrderRow {
	row := OrderRow{
		RunID:     runID,
		OrderID:   o.ID,
		Account:   o.Account,
		Side:      o.Side.String(),
		Tag:       u.Tag.String(),
		Size:      int64(o.Size),
		Shares:    int64(u.Shares),
		Filled:    int64(u.Filled),
		Canceled:  int64(u.Canceled),
		Price:     int64(u.Price),
		Liquidity: uint8(u.Liquidity),
		ExecID:    u.ExecID,
		Synthetic: u.Synthetic,
		EventTime: u.Time.Time(),
	}
	if u.Tag == og.UpdateRejected {
		row.Result = u.Result.String()
	}
	if reg != nil {
		row.Venue = reg.VenueName(o.Venue)
		row.Symbol = reg.SymbolName(o.Symbol)
	}
	return row
}
