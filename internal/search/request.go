// Package search converts simple user parameters into the structured filter
// format the external search provider expects, and parses its inconsistently
// shaped response envelopes back into lead records.
package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/resolve"
)

// Filter types understood by the search provider.
const (
	FilterRegion   = "REGION"
	FilterTitle    = "CURRENT_TITLE"
	FilterCompany  = "CURRENT_COMPANY"
	FilterIndustry = "INDUSTRY"
)

// Selection markers for filter values.
const (
	SelectionIncluded = "INCLUDED"
	SelectionExcluded = "EXCLUDED"
)

// FilterValue is one value inside a typed filter.
type FilterValue struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text,omitempty"`
	Selection string `json:"selectionType"`
}

// Filter is a typed key with its value list.
type Filter struct {
	Type   string        `json:"type"`
	Values []FilterValue `json:"values"`
}

// SearchRequest is the structured request sent to the search provider.
type SearchRequest struct {
	Filters  []Filter `json:"filters,omitempty"`
	Keywords string   `json:"keywords,omitempty"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size,omitempty"`
}

// SimpleParams are the user-facing search inputs.
type SimpleParams struct {
	Keywords string
	Title    string
	Company  string
	Industry string
	Location string
	Page     int
	PageSize int
}

// BuildRequest converts params into a SearchRequest, resolving the location
// through the resolver. A resolution miss is non-fatal: the location text
// degrades to a keyword term instead of becoming a fake identifier.
func BuildRequest(ctx context.Context, params SimpleParams, resolver *resolve.Resolver) (SearchRequest, error) {
	req := SearchRequest{
		Keywords: strings.TrimSpace(params.Keywords),
		Page:     params.Page,
		PageSize: params.PageSize,
	}

	if params.Title != "" {
		req.Filters = append(req.Filters, Filter{
			Type:   FilterTitle,
			Values: []FilterValue{{Text: params.Title, Selection: SelectionIncluded}},
		})
	}
	if params.Company != "" {
		req.Filters = append(req.Filters, Filter{
			Type:   FilterCompany,
			Values: []FilterValue{{Text: params.Company, Selection: SelectionIncluded}},
		})
	}
	if params.Industry != "" {
		req.Filters = append(req.Filters, Filter{
			Type:   FilterIndustry,
			Values: []FilterValue{{Text: params.Industry, Selection: SelectionIncluded}},
		})
	}

	if params.Location != "" {
		res, err := resolver.Resolve(ctx, params.Location, true)
		switch {
		case err == nil:
			req.Filters = append(req.Filters, Filter{
				Type:   FilterRegion,
				Values: []FilterValue{{ID: res.LocationID, Text: res.DisplayName, Selection: SelectionIncluded}},
			})
		case eris.Is(err, resolve.ErrNoLocationID):
			zap.L().Warn("location unresolved, degrading to keyword search",
				zap.String("location", params.Location))
			req.Keywords = strings.TrimSpace(req.Keywords + " " + params.Location)
		default:
			return SearchRequest{}, eris.Wrap(err, "search: resolve location")
		}
	}

	return req, nil
}
