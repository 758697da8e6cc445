package models

import (
	"reflect"
	"testing"
)

func TestNewListingDefaults(t *testing.T) {
	l := NewListing("123456", "cian")
	if l.Status != ListingStatusOpen {
		t.Fatalf("expected status open, got %s", l.Status)
	}
	if !l.Visible {
		t.Fatal("expected new listing to be visible")
	}
}

func TestSellerRoundTrip(t *testing.T) {
	s := Seller{Phone: "+79991234567", ProfileURL: "https://cian.ru/agent/42"}
	encoded := s.Encode()
	if encoded != "+79991234567 | https://cian.ru/agent/42" {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if got := ParseSeller(encoded); got != s {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestParseSellerPartialValues(t *testing.T) {
	cases := []struct {
		raw  string
		want Seller
	}{
		{"", Seller{}},
		{"+79991234567", Seller{Phone: "+79991234567"}},
		{"https://cian.ru/agent/42", Seller{ProfileURL: "https://cian.ru/agent/42"}},
		{"  +79991234567 | https://cian.ru/agent/42  ", Seller{Phone: "+79991234567", ProfileURL: "https://cian.ru/agent/42"}},
	}
	for _, c := range cases {
		if got := ParseSeller(c.raw); got != c.want {
			t.Fatalf("ParseSeller(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}
}

func TestEncodeSellerPartialValues(t *testing.T) {
	if got := (Seller{Phone: "+79991234567"}).Encode(); got != "+79991234567" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if got := (Seller{ProfileURL: "https://cian.ru/agent/42"}).Encode(); got != "https://cian.ru/agent/42" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if !(Seller{}).IsZero() {
		t.Fatal("empty seller should be zero")
	}
}

func TestPhotosRoundTrip(t *testing.T) {
	photos := []string{"https://cdn.cian.ru/1.jpg", "https://cdn.cian.ru/2.jpg"}
	encoded, err := EncodePhotos(photos)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got := DecodePhotos(encoded); !reflect.DeepEqual(got, photos) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestEncodePhotosNil(t *testing.T) {
	encoded, err := EncodePhotos(nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if encoded != "[]" {
		t.Fatalf("expected empty JSON list, got %q", encoded)
	}
	if got := DecodePhotos(encoded); got != nil {
		t.Fatalf("expected nil photos, got %v", got)
	}
}

func TestDecodePhotosLegacyString(t *testing.T) {
	// Rows written by the old tooling sometimes hold a bare string.
	got := DecodePhotos("photo1.jpg")
	if len(got) != 1 || got[0] != "photo1.jpg" {
		t.Fatalf("expected single legacy entry, got %v", got)
	}
	if got := DecodePhotos(""); got != nil {
		t.Fatalf("expected nil for empty column, got %v", got)
	}
}
