package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNoPrice is returned for rows without a positive modal price.
var ErrNoPrice = errors.New("record has no modal price")

// IST is the zone arrival dates are reported in.
var IST = time.FixedZone("IST", 5*60*60+30*60)

var titler = cases.Title(language.English)

// Quote is a normalized mandi price.
type Quote struct {
	Commodity   string
	Variety     string
	Market      string
	State       string
	District    string
	Grade       string
	ModalPrice  int
	MinPrice    int
	MaxPrice    int
	ArrivalDate time.Time
}

// NormalizeName collapses whitespace and title-cases a name reported in
// arbitrary case ("WHEAT", "wheat ") so it matches the store's keys.
func NormalizeName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return titler.String(strings.ToLower(s))
}

// ParseArrivalDate parses a dd/mm/yyyy arrival date at midnight IST.
// Returns the zero time for empty or invalid input.
func ParseArrivalDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, IST); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Normalize converts a raw record into a Quote.
func (r MandiRecord) Normalize() (Quote, error) {
	modal := int(r.ModalPrice.Round(0).IntPart())
	if modal <= 0 {
		return Quote{}, fmt.Errorf("%w: %s at %s", ErrNoPrice, r.Commodity, r.Market)
	}

	return Quote{
		Commodity:   NormalizeName(r.Commodity),
		Variety:     NormalizeName(r.Variety),
		Market:      NormalizeName(r.Market),
		State:       NormalizeName(r.State),
		District:    NormalizeName(r.District),
		Grade:       strings.TrimSpace(r.Grade),
		ModalPrice:  modal,
		MinPrice:    int(r.MinPrice.Round(0).IntPart()),
		MaxPrice:    int(r.MaxPrice.Round(0).IntPart()),
		ArrivalDate: ParseArrivalDate(r.ArrivalDate),
	}, nil
}
