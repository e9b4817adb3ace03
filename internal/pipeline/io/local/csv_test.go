package local

import (
	"strings"
	"testing"
)

func TestReadItemsCSV_HeaderWithQuantity(t *testing.T) {
	t.Parallel()

	in := "mpn,quantity\nABC123,5\nXYZ-9,\n"
	items, err := ReadItemsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].MPN != "ABC123" || items[0].Quantity == nil || *items[0].Quantity != 5 {
		t.Fatalf("unexpected first item: %#v", items[0])
	}
	if items[1].MPN != "XYZ-9" || items[1].Quantity != nil {
		t.Fatalf("unexpected second item: %#v", items[1])
	}
}

func TestReadItemsCSV_HeaderlessSingleColumn(t *testing.T) {
	t.Parallel()

	items, err := ReadItemsCSV(strings.NewReader("ABC123\nXYZ-9\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].MPN != "ABC123" || items[1].MPN != "XYZ-9" {
		t.Fatalf("unexpected items: %#v", items)
	}
}

func TestReadItemsCSV_HeaderlessWithQuantity(t *testing.T) {
	t.Parallel()

	items, err := ReadItemsCSV(strings.NewReader("ABC123,10\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 1 || items[0].Quantity == nil || *items[0].Quantity != 10 {
		t.Fatalf("unexpected items: %#v", items)
	}
}

func TestReadItemsCSV_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"empty input", ""},
		{"header only", "mpn,quantity\n"},
		{"blank identifier", "mpn\n   \n"},
		{"bad quantity", "ABC123,lots\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ReadItemsCSV(strings.NewReader(tc.in)); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
