package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexInt decodes an integer sent either as a number or a quoted string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*f = FlexInt(n)
	return nil
}

// Price is a rupee amount sent as a number or string. Blank and
// non-numeric values ("", "NR") decode as zero.
type Price struct {
	decimal.Decimal
}

func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.Decimal = decimal.Zero
		return nil
	}
	p.Decimal = d
	return nil
}
