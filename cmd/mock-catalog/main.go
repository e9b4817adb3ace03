package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/mockcatalog"
)

func main() {
	addr := defaultString("MOCK_CATALOG_ADDR", ":8090")
	seedPath := defaultString("MOCK_CATALOG_SEED", "")
	token := defaultString("MOCK_CATALOG_TOKEN", "")

	fs := flag.NewFlagSet("mock-catalog", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&seedPath, "seed", seedPath, "JSON file with an array of parts to serve (default: built-in demo parts)")
	fs.StringVar(&token, "token", token, "Require this bearer token on GraphQL requests (empty disables auth)")
	_ = fs.Parse(os.Args[1:])

	parts := demoParts()
	if seedPath != "" {
		var err error
		parts, err = readSeed(seedPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
			os.Exit(2)
		}
	}

	srv := mockcatalog.New(parts)
	srv.RequireBearerToken(token)

	_, _ = fmt.Fprintf(os.Stdout, "mock-catalog listening on %s (parts=%d auth=%v)\n", addr, len(parts), token != "")
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func readSeed(path string) ([]catalog.Part, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parts []catalog.Part
	if err := json.Unmarshal(b, &parts); err != nil {
		return nil, fmt.Errorf("parse seed JSON: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("seed file has no parts")
	}
	return parts, nil
}

// demoParts covers a couple of common lookup shapes: an exact match with
// priced offers and a variant family sharing a prefix.
func demoParts() []catalog.Part {
	return []catalog.Part{
		{
			MPN:          "GRM155R71C104KA88D",
			Name:         "GRM155R71C104KA88D 0402 100nF X7R",
			Manufacturer: catalog.Company{ID: "mfr-murata", Name: "Murata"},
			Category:     catalog.Category{ID: "cat-cap", Name: "Ceramic Capacitors"},
			Sellers: []catalog.Seller{
				{
					Company: catalog.Company{ID: "sel-mouser", Name: "Mouser", IsVerified: true, HomepageURL: "https://www.mouser.com"},
					Offers: []catalog.Offer{
						{
							InventoryLevel: 125000,
							Prices: []catalog.PriceBreak{
								{Quantity: 1, Price: "0.10", Currency: "USD"},
								{Quantity: 100, Price: "0.02", Currency: "USD"},
							},
						},
					},
				},
			},
		},
		{
			MPN:          "GRM155R71C104KA88J",
			Name:         "GRM155R71C104KA88J 0402 100nF X7R",
			Manufacturer: catalog.Company{ID: "mfr-murata", Name: "Murata"},
			Category:     catalog.Category{ID: "cat-cap", Name: "Ceramic Capacitors"},
			Sellers: []catalog.Seller{
				{
					Company: catalog.Company{ID: "sel-digikey", Name: "Digi-Key", IsVerified: true, HomepageURL: "https://www.digikey.com"},
					Offers: []catalog.Offer{
						{
							InventoryLevel: 4300,
							Prices: []catalog.PriceBreak{
								{Quantity: 1, Price: "0.12", Currency: "USD"},
							},
						},
					},
				},
			},
		},
		{
			MPN:          "STM32F103C8T6",
			Name:         "STM32F103C8T6 ARM Cortex-M3 MCU",
			Manufacturer: catalog.Company{ID: "mfr-st", Name: "STMicroelectronics"},
			Category:     catalog.Category{ID: "cat-mcu", Name: "Microcontrollers"},
			Sellers: []catalog.Seller{
				{
					Company: catalog.Company{ID: "sel-arrow", Name: "Arrow", IsVerified: true, HomepageURL: "https://www.arrow.com"},
					Offers: []catalog.Offer{
						{
							InventoryLevel: 820,
							Prices: []catalog.PriceBreak{
								{Quantity: 1, Price: "4.85", Currency: "USD"},
								{Quantity: 250, Price: "3.90", Currency: "USD"},
							},
						},
					},
				},
				{
					Company: catalog.Company{ID: "sel-grey", Name: "GreyMarket Parts"},
					Offers: []catalog.Offer{
						{
							InventoryLevel: 15000,
							Prices: []catalog.PriceBreak{
								{Quantity: 1, Price: "1.99", Currency: "USD"},
							},
						},
					},
				},
			},
		},
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
