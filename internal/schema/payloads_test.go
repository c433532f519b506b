package schema

import (
	"testing"
	"time"
)

func TestDataUpdateEqualComparesIdentityOnly(t *testing.T) {
	base := DataUpdate{
		Kind:     DataBookChange,
		Side:     SideBuy,
		Venue:    2,
		Symbol:   7,
		Size:     300,
		Price:    10_100,
		ID:       42,
		OriginTs: Timeval(0).Add(time.Second),
		LocalTs:  Timeval(0).Add(time.Second + time.Millisecond),
	}

	testCases := []struct {
		desc   string
		modify func(u *DataUpdate)
		want   bool
	}{
		{desc: "identical", modify: func(*DataUpdate) {}, want: true},
		{desc: "price differs", modify: func(u *DataUpdate) { u.Price = 9_900 }, want: true},
		{desc: "origin time differs", modify: func(u *DataUpdate) { u.OriginTs = u.OriginTs.Add(time.Hour) }, want: true},
		{desc: "local time differs", modify: func(u *DataUpdate) { u.LocalTs = NoTime }, want: true},
		{desc: "kind differs", modify: func(u *DataUpdate) { u.Kind = DataVisibleTrade }, want: false},
		{desc: "venue differs", modify: func(u *DataUpdate) { u.Venue = 3 }, want: false},
		{desc: "side differs", modify: func(u *DataUpdate) { u.Side = SideSell }, want: false},
		{desc: "symbol differs", modify: func(u *DataUpdate) { u.Symbol = 8 }, want: false},
		{desc: "size differs", modify: func(u *DataUpdate) { u.Size = 299 }, want: false},
		{desc: "id differs", modify: func(u *DataUpdate) { u.ID = 43 }, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			other := base
			tc.modify(&other)
			if got := base.Equal(other); got != tc.want {
				t.Fatalf("base.Equal: got %v want %v", got, tc.want)
			}
			if got := other.Equal(base); got != tc.want {
				t.Fatalf("other.Equal: got %v want %v", got, tc.want)
			}
		})
	}
}
