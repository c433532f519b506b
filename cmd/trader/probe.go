package main

import (
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/adapter"
	"tradecore/internal/og"
	"tradecore/internal/schema"
	"tradecore/internal/timer"
)

// probe keeps at most one small order resting at the bid of one symbol.
// Every tick it either places a new order or cancels the resting one, so a
// sim run exercises the whole lifecycle.
type probe struct {
	mgr    *og.Manager
	book   adapter.Book
	symbol schema.SymbolID
	venue  schema.VenueID
	size   schema.Quantity
	timer  timer.Timer

	open    *og.Order
	placed  int
	results map[og.OrderResult]int
}

func newProbe(mgr *og.Manager, book adapter.Book, symbol schema.SymbolID, venue schema.VenueID, every time.Duration) *probe {
	return &probe{
		mgr:     mgr,
		book:    book,
		symbol:  symbol,
		venue:   venue,
		size:    100,
		timer:   timer.Every(every, 0),
		results: make(map[og.OrderResult]int),
	}
}

func (p *probe) onTime(u timer.TimeUpdate) {
	if u.Timer != p.timer {
		return
	}
	if p.open != nil {
		if !p.open.CancelPending() {
			p.mgr.CancelOrder(p.open.ID)
		}
		return
	}
	bid, ok := p.book.BestPrice(p.symbol, schema.SideBuy, 0)
	if !ok {
		return
	}
	res, o := p.mgr.PlaceOrder(og.PlaceRequest{
		Symbol:  p.symbol,
		Venue:   p.venue,
		Side:    schema.SideBuy,
		Size:    p.size,
		Price:   bid,
		Timeout: 30 * time.Second,
		Algo:    1,
	})
	p.results[res]++
	if res != og.ResultGood {
		logs.Warnf("probe: place %d @ %d, result %s", p.size, bid, res)
		return
	}
	p.placed++
	p.open = o
}

func (p *probe) onOrder(o *og.Order) {
	if p.open == nil || o != p.open || !o.IsDone() {
		return
	}
	last := o.Last()
	logs.Infof("probe: order %d done as %s, filled %d", o.ID, last.Tag, last.Filled)
	p.open = nil
}

func (p *probe) summary() {
	logs.Infof("probe: placed %d, results %v", p.placed, p.results)
}
