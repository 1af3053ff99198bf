package search

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// ErrNoEnvelope is returned when a response body matches none of the known
// envelope shapes.
var ErrNoEnvelope = eris.New("search: response matches no known envelope shape")

// Pagination is the provider's paging metadata, when present.
type Pagination struct {
	Total int `json:"total"`
	Count int `json:"count"`
	Start int `json:"start"`
}

// ParseLeadEnvelope extracts lead records from a search response body. The
// provider has shipped several envelope shapes over time; each is tried in a
// fixed priority order and the first that yields a non-empty array wins:
// nested response.data, flat data, a bare top-level array, then the
// leads/results keys.
func ParseLeadEnvelope(body []byte) ([]model.LeadRecord, Pagination, error) {
	var page Pagination

	// Bare top-level array has no room for metadata; probe it separately.
	var topLevel []json.RawMessage
	if err := json.Unmarshal(body, &topLevel); err == nil {
		if leads := decodeLeads(topLevel); len(leads) > 0 {
			page.Count = len(leads)
			page.Total = len(leads)
			return leads, page, nil
		}
		return nil, page, ErrNoEnvelope
	}

	var envelope struct {
		Response struct {
			Data       []json.RawMessage `json:"data"`
			Pagination *Pagination       `json:"pagination"`
		} `json:"response"`
		Data       []json.RawMessage `json:"data"`
		Leads      []json.RawMessage `json:"leads"`
		Results    []json.RawMessage `json:"results"`
		Pagination *Pagination       `json:"pagination"`
		Paging     *Pagination       `json:"paging"`
		Total      int               `json:"total"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, page, eris.Wrap(err, "search: decode response")
	}

	switch {
	case envelope.Pagination != nil:
		page = *envelope.Pagination
	case envelope.Paging != nil:
		page = *envelope.Paging
	case envelope.Response.Pagination != nil:
		page = *envelope.Response.Pagination
	case envelope.Total > 0:
		page.Total = envelope.Total
	}

	for _, raw := range [][]json.RawMessage{
		envelope.Response.Data,
		envelope.Data,
		envelope.Leads,
		envelope.Results,
	} {
		if leads := decodeLeads(raw); len(leads) > 0 {
			if page.Count == 0 {
				page.Count = len(leads)
			}
			return leads, page, nil
		}
	}
	return nil, page, ErrNoEnvelope
}

// rawLead tolerates the field aliases seen across envelope generations.
type rawLead struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	First    string `json:"firstName"`
	Last     string `json:"lastName"`

	Title    string `json:"title"`
	Headline string `json:"headline"`

	Company     string `json:"company"`
	CompanyName string `json:"companyName"`

	Location        string `json:"location"`
	RawLocation     string `json:"rawLocation"`
	GeoLocationName string `json:"geoLocationName"`

	GeoID      string `json:"geoId"`
	LocationID string `json:"locationId"`

	ProfileURL       string `json:"profileUrl"`
	PublicProfileURL string `json:"publicProfileUrl"`

	Email string `json:"email"`
	Phone string `json:"phone"`
}

func decodeLeads(raw []json.RawMessage) []model.LeadRecord {
	leads := make([]model.LeadRecord, 0, len(raw))
	for _, r := range raw {
		var rl rawLead
		if err := json.Unmarshal(r, &rl); err != nil {
			continue
		}
		lead := rl.toRecord()
		if lead.Name == "" {
			continue
		}
		leads = append(leads, lead)
	}
	return leads
}

func (rl rawLead) toRecord() model.LeadRecord {
	lead := model.LeadRecord{
		Name:        first(rl.Name, rl.FullName, strings.TrimSpace(rl.First+" "+rl.Last)),
		Title:       first(rl.Title, rl.Headline),
		Company:     first(rl.Company, rl.CompanyName),
		RawLocation: first(rl.Location, rl.RawLocation, rl.GeoLocationName),
		GeoID:       first(rl.GeoID, rl.LocationID),
		ProfileURL:  first(rl.ProfileURL, rl.PublicProfileURL),
		Email:       rl.Email,
		Phone:       rl.Phone,
	}
	return lead
}

func first(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
