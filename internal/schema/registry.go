package schema

import (
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// MaxVenueID is the largest venue code that fits the sequence-number venue field.
const MaxVenueID VenueID = 15

// VenueID is the dense code of an execution venue, 1..MaxVenueID.
type VenueID uint8

// SymbolID is the dense id of a traded instrument, assigned once per run.
type SymbolID uint32

// Venue describes an execution venue.
type Venue struct {
	ID   VenueID
	Name string
}

// Symbol describes a tradable instrument.
type Symbol struct {
	ID      SymbolID
	VenueID VenueID
	Name    string
}

// Registry stores venue and symbol mappings in a compact form.
// It only grows; ids stay valid for the life of the run.
type Registry struct {
	venues       []Venue
	symbols      []Symbol
	venueByName  map[string]VenueID
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:  make(map[string]VenueID),
		symbolByName: make(map[string]SymbolID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, errors.Errorf("venue already exists: %s", name)
	}
	if len(r.venues) >= int(MaxVenueID) {
		return 0, errors.Wrapf(exception.ErrIndexOutOfRange, "too many venues, max %d", MaxVenueID)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddSymbol registers a new symbol and returns its ID.
func (r *Registry) AddSymbol(name string, venueID VenueID) (SymbolID, error) {
	if name == "" {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "symbol name is empty")
	}
	if _, ok := r.Venue(venueID); !ok {
		return 0, errors.Errorf("venue id not found: %d", venueID)
	}
	if id, ok := r.symbolByName[name]; ok {
		return id, errors.Errorf("symbol already exists: %s", name)
	}
	id := SymbolID(len(r.symbols) + 1)
	r.symbols = append(r.symbols, Symbol{
		ID:      id,
		VenueID: venueID,
		Name:    name,
	})
	r.symbolByName[name] = id
	return id, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Symbol returns the symbol by ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if !r.ValidSymbol(id) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// ValidSymbol reports whether id belongs to today's population.
func (r *Registry) ValidSymbol(id SymbolID) bool {
	return id != 0 && int(id) <= len(r.symbols)
}

// SymbolName returns the symbol name or "?" when unknown.
func (r *Registry) SymbolName(id SymbolID) string {
	if s, ok := r.Symbol(id); ok {
		return s.Name
	}
	return "?"
}

// VenueName returns the venue name or "?" when unknown.
func (r *Registry) VenueName(id VenueID) string {
	if v, ok := r.Venue(id); ok {
		return v.Name
	}
	return "?"
}

// SymbolCount returns the number of symbols in the registry.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// VenueCount returns the number of venues in the registry.
func (r *Registry) VenueCount() int {
	return len(r.venues)
}

// SymbolAt returns the symbol by zero-based index.
func (r *Registry) SymbolAt(index int) (Symbol, bool) {
	if index < 0 || index >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[index], true
}

// VenueIDByName returns the venue ID for a name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// SymbolIDByName returns the symbol ID for a name.
func (r *Registry) SymbolIDByName(name string) (SymbolID, bool) {
	id, ok := r.symbolByName[name]
	return id, ok
}
