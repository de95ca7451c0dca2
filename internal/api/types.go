package api

// ResourceResponse from GET /resource/{id}
type ResourceResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Total   int           `json:"total"`
	Count   int           `json:"count"`
	Limit   FlexInt       `json:"limit"`
	Offset  FlexInt       `json:"offset"`
	Records []MandiRecord `json:"records"`
}

// MandiRecord is one commodity price row reported by a market.
type MandiRecord struct {
	State       string `json:"state"`
	District    string `json:"district"`
	Market      string `json:"market"`
	Commodity   string `json:"commodity"`
	Variety     string `json:"variety"`
	Grade       string `json:"grade"`
	ArrivalDate string `json:"arrival_date"` // dd/mm/yyyy
	MinPrice    Price  `json:"min_price"`
	MaxPrice    Price  `json:"max_price"`
	ModalPrice  Price  `json:"modal_price"`
}

// GetPricesOptions configures a GetPrices request.
type GetPricesOptions struct {
	Commodity string
	State     string
	Market    string
	Limit     int
	Offset    int
}
