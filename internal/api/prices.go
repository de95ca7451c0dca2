package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// maxPageSize is the largest limit the resource API honours.
const maxPageSize = 1000

// GetPrices fetches a page of mandi prices.
func (c *Client) GetPrices(ctx context.Context, opts GetPricesOptions) (*ResourceResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Commodity != "" {
		query.Set("filters[commodity]", opts.Commodity)
	}
	if opts.State != "" {
		query.Set("filters[state]", opts.State)
	}
	if opts.Market != "" {
		query.Set("filters[market]", opts.Market)
	}

	var resp ResourceResponse
	if err := c.get(ctx, "/resource/"+c.resourceID, query, &resp); err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}

	return &resp, nil
}

// GetAllPrices fetches every record for a commodity by paging on offset.
func (c *Client) GetAllPrices(ctx context.Context, commodity string) ([]MandiRecord, error) {
	var all []MandiRecord
	opts := GetPricesOptions{Commodity: commodity, Limit: maxPageSize}

	for {
		resp, err := c.GetPrices(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Records...)

		if len(resp.Records) < opts.Limit || (resp.Total > 0 && len(all) >= resp.Total) {
			break
		}
		opts.Offset += len(resp.Records)
	}

	return all, nil
}
