package catalog

import "testing"

func TestBaseSKU(t *testing.T) {
	cases := []struct {
		name        string
		collection  string
		productType string
		gender      string
		productName string
		want        string
	}{
		{"known collection", "VERANO", "POLO", "HOMBRE", "Polo Basico", "VER-POL-H-PB"},
		{"winter women", "INVIERNO", "CASACA", "MUJER", "Casaca Puffer", "INV-CAS-M-CP"},
		{"unknown collection truncated", "PRIMAVERA", "POLO", "UNISEX", "Oversize", "PRI-POL-U-O"},
		{"collection with digits masked", "F1 DROP", "POLO", "HOMBRE", "Racing Tee", "FXX-POL-H-RT"},
		{"acronym capped at three", "VERANO", "POLO", "HOMBRE", "Uno Dos Tres Cuatro", "VER-POL-H-UDT"},
		{"missing type", "VERANO", "", "HOMBRE", "Polo", "INVALID-SKU"},
		{"missing name", "VERANO", "POLO", "HOMBRE", "", "INVALID-SKU"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BaseSKU(tc.collection, tc.productType, tc.gender, tc.productName)
			if got != tc.want {
				t.Fatalf("BaseSKU() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVariantSKU(t *testing.T) {
	cases := []struct {
		name  string
		color string
		size  string
		want  string
	}{
		{"known spanish color", "Negro", "M", "VER-POL-H-PB-BLK-M"},
		{"known english color", "white", "L", "VER-POL-H-PB-WHT-L"},
		{"unknown color truncated", "Turquesa", "xl", "VER-POL-H-PB-TUR-XL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VariantSKU("VER-POL-H-PB", tc.color, tc.size)
			if got != tc.want {
				t.Fatalf("VariantSKU() = %q, want %q", got, tc.want)
			}
		})
	}
}
