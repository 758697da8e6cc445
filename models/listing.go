package models

import (
	"encoding/json"
	"strings"
)

type ListingStatus string

const (
	ListingStatusOpen   ListingStatus = "open"
	ListingStatusClosed ListingStatus = "closed"
)

// Listing is one observed commercial real-estate offer, identified by the
// source-provided ad id. Lat/lng stay strings; the on-disk columns are TEXT
// and the source does not guarantee a numeric format.
type Listing struct {
	ID          string        `json:"id" db:"id"`
	Source      string        `json:"source" db:"source"`
	Price       float64       `json:"price" db:"price"`
	Area        string        `json:"area" db:"area"`
	Description string        `json:"description" db:"description"`
	URL         string        `json:"url" db:"url"`
	Floor       string        `json:"floor" db:"floor"`
	Address     string        `json:"address" db:"address"`
	Lat         string        `json:"lat" db:"lat"`
	Lng         string        `json:"lng" db:"lng"`
	Seller      Seller        `json:"seller" db:"seller"`
	Photos      []string      `json:"photos" db:"photos"`
	Status      ListingStatus `json:"status" db:"status"`
	Visible     bool          `json:"visible" db:"visible"`
}

// NewListing returns a listing with first-sighting defaults (open, visible).
func NewListing(id, source string) Listing {
	return Listing{
		ID:      id,
		Source:  source,
		Status:  ListingStatusOpen,
		Visible: true,
	}
}

// Seller is the structured form of the flat seller column, which holds the
// contact phone and the seller's profile URL joined by " | ".
type Seller struct {
	Phone      string `json:"phone"`
	ProfileURL string `json:"profile_url"`
}

const sellerSep = " | "

func (s Seller) IsZero() bool {
	return s.Phone == "" && s.ProfileURL == ""
}

// Encode flattens the seller to the stored "phone | url" form.
func (s Seller) Encode() string {
	switch {
	case s.Phone == "":
		return s.ProfileURL
	case s.ProfileURL == "":
		return s.Phone
	default:
		return s.Phone + sellerSep + s.ProfileURL
	}
}

// ParseSeller splits a stored seller string back into its parts. A value
// without the separator is taken as a bare URL when it looks like one,
// otherwise as a phone.
func ParseSeller(raw string) Seller {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Seller{}
	}
	if phone, url, ok := strings.Cut(raw, sellerSep); ok {
		return Seller{Phone: strings.TrimSpace(phone), ProfileURL: strings.TrimSpace(url)}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return Seller{ProfileURL: raw}
	}
	return Seller{Phone: raw}
}

// EncodePhotos serializes photo URLs for the TEXT photos column.
func EncodePhotos(photos []string) (string, error) {
	if photos == nil {
		photos = []string{}
	}
	b, err := json.Marshal(photos)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePhotos parses the stored photo list. Rows written by earlier tooling
// may hold a plain string instead of JSON; those come back as a single entry.
func DecodePhotos(raw string) []string {
	if raw == "" {
		return nil
	}
	var photos []string
	if err := json.Unmarshal([]byte(raw), &photos); err != nil {
		return []string{raw}
	}
	if len(photos) == 0 {
		return nil
	}
	return photos
}
