package core

import (
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type classKey struct {
	family schema.Family
	kind   schema.Kind
}

type handler func(ev schema.Event) error

// hiddenPolicy is the only difference between hidden-execution variants of
// the feed families.
type hiddenPolicy struct {
	// localStamp replaces the venue timestamp with the receive time when
	// the family does not carry a usable one.
	localStamp bool
	// visible publishes the print as a visible trade.
	visible bool
}

var feedFamilies = [...]schema.Family{schema.FamilyLegacy, schema.FamilyCurrent, schema.FamilyConsolidated}

var hiddenPolicies = map[schema.Family]hiddenPolicy{
	schema.FamilyLegacy:       {localStamp: true, visible: false},
	schema.FamilyCurrent:      {localStamp: false, visible: false},
	schema.FamilyConsolidated: {localStamp: false, visible: true},
}

func (c *Coordinator) classificationTable() map[classKey]handler {
	t := make(map[classKey]handler)
	for _, f := range feedFamilies {
		t[classKey{f, schema.KindBookChange}] = c.onBookChange
		t[classKey{f, schema.KindExecution}] = c.onExecution
		t[classKey{f, schema.KindHiddenExecution}] = c.hiddenExecution(hiddenPolicies[f])
		t[classKey{f, schema.KindCrossTrade}] = c.onCrossTrade
		t[classKey{f, schema.KindSymbolStatus}] = c.onSymbolStatus
	}
	t[classKey{schema.FamilyConsolidated, schema.KindTapePrint}] = c.onTapePrint
	t[classKey{schema.FamilyInternal, schema.KindUserMessage}] = c.onUserMessage
	t[classKey{schema.FamilyInternal, schema.KindSymbolStatus}] = c.onSymbolStatus

	all := append(feedFamilies[:], schema.FamilyInternal)
	for _, f := range all {
		t[classKey{f, schema.KindHeartbeat}] = c.onHeartbeat
		t[classKey{f, schema.KindStop}] = c.onStop
	}
	return t
}

func (c *Coordinator) knownSymbol(id schema.SymbolID) error {
	if !c.registry.ValidSymbol(id) {
		return exception.ErrUnknownSymbol
	}
	return nil
}

func (c *Coordinator) onBookChange(ev schema.Event) error {
	p, ok := ev.Payload.(schema.BookChange)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if err := c.knownSymbol(p.Symbol); err != nil {
		return err
	}
	c.d.Market.Dispatch(schema.DataUpdate{
		Kind:     schema.DataBookChange,
		Side:     p.Side,
		Venue:    ev.Header.Source,
		Symbol:   p.Symbol,
		Size:     p.Size,
		Price:    p.Price,
		ID:       p.OrderID,
		OriginTs: ev.Header.TsEvent,
		LocalTs:  ev.Header.TsRecv,
	})
	return nil
}

func (c *Coordinator) onExecution(ev schema.Event) error {
	p, ok := ev.Payload.(schema.Execution)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if err := c.knownSymbol(p.Symbol); err != nil {
		return err
	}
	c.d.Market.Dispatch(schema.DataUpdate{
		Kind:     schema.DataVisibleTrade,
		Side:     p.Side,
		Venue:    ev.Header.Source,
		Symbol:   p.Symbol,
		Size:     p.Size,
		Price:    p.Price,
		ID:       p.MatchID,
		OriginTs: ev.Header.TsEvent,
		LocalTs:  ev.Header.TsRecv,
	})
	return nil
}

func (c *Coordinator) hiddenExecution(policy hiddenPolicy) handler {
	return func(ev schema.Event) error {
		p, ok := ev.Payload.(schema.Execution)
		if !ok {
			return exception.ErrPayloadKindMismatch
		}
		if err := c.knownSymbol(p.Symbol); err != nil {
			return err
		}
		u := schema.DataUpdate{
			Kind:     schema.DataInvisibleTrade,
			Side:     p.Side,
			Venue:    ev.Header.Source,
			Symbol:   p.Symbol,
			Size:     p.Size,
			Price:    p.Price,
			ID:       p.MatchID,
			OriginTs: ev.Header.TsEvent,
			LocalTs:  ev.Header.TsRecv,
		}
		if policy.visible {
			u.Kind = schema.DataVisibleTrade
		}
		if policy.localStamp {
			u.OriginTs = ev.Header.TsRecv
		}
		c.d.Market.Dispatch(u)
		return nil
	}
}

func (c *Coordinator) onCrossTrade(ev schema.Event) error {
	p, ok := ev.Payload.(schema.CrossTrade)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if err := c.knownSymbol(p.Symbol); err != nil {
		return err
	}
	c.d.Market.Dispatch(schema.DataUpdate{
		Kind:     schema.DataVisibleTrade,
		Side:     schema.SideUnknown,
		Venue:    ev.Header.Source,
		Symbol:   p.Symbol,
		Size:     p.Size,
		Price:    p.Price,
		ID:       p.MatchID,
		OriginTs: ev.Header.TsEvent,
		LocalTs:  ev.Header.TsRecv,
	})
	return nil
}

func (c *Coordinator) onTapePrint(ev schema.Event) error {
	p, ok := ev.Payload.(schema.TapePrint)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if err := c.knownSymbol(p.Symbol); err != nil {
		return err
	}
	c.d.Tape.Dispatch(schema.TapeUpdate{
		Symbol:     p.Symbol,
		Venue:      p.Venue,
		Size:       p.Size,
		Price:      p.Price,
		Conditions: p.Conditions,
		OriginTs:   ev.Header.TsEvent,
		LocalTs:    ev.Header.TsRecv,
	})
	return nil
}

func (c *Coordinator) onUserMessage(ev schema.Event) error {
	p, ok := ev.Payload.(schema.UserMessage)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if p.Symbol != 0 {
		if err := c.knownSymbol(p.Symbol); err != nil {
			return err
		}
	}
	if p.Channel == AdminChannel && p.Symbol != 0 {
		if st, ok := adminCommand(p.Text); ok {
			c.queueAdmin(p.Symbol, st)
			return nil
		}
	}
	c.d.UserMessage.Dispatch(p)
	return nil
}

func (c *Coordinator) onSymbolStatus(ev schema.Event) error {
	p, ok := ev.Payload.(schema.SymbolStatus)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	if err := c.knownSymbol(p.Symbol); err != nil {
		return err
	}
	c.queueAdmin(p.Symbol, adminState{halted: p.Halted, reason: p.Reason})
	return nil
}

func (c *Coordinator) onHeartbeat(ev schema.Event) error {
	if _, ok := ev.Payload.(schema.Heartbeat); !ok && ev.Payload != nil {
		return exception.ErrPayloadKindMismatch
	}
	return nil
}

func (c *Coordinator) onStop(ev schema.Event) error {
	p, ok := ev.Payload.(schema.Stop)
	if !ok {
		return exception.ErrPayloadKindMismatch
	}
	c.Stop(p.Status, p.Reason)
	return nil
}
