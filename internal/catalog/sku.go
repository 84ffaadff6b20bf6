package catalog

import (
	"regexp"
	"strings"
)

var nonUpperAlpha = regexp.MustCompile(`[^A-Z]`)

var collectionCodes = map[string]string{
	"VERANO":    "VER",
	"INVIERNO":  "INV",
	"ANADIBLES": "ADD",
}

var colorCodes = map[string]string{
	"negro":    "BLK",
	"black":    "BLK",
	"blanco":   "WHT",
	"white":    "WHT",
	"rojo":     "RED",
	"azul":     "BLU",
	"blue":     "BLU",
	"verde":    "GRN",
	"green":    "GRN",
	"amarillo": "YEL",
}

// BaseSKU derives the SKU prefix shared by all variants of a product:
// collection code, type code, gender code, and a name acronym, joined
// with dashes. Example: VER-POL-H-PB for a "Polo Basico" men's summer polo.
func BaseSKU(collection, productType, gender, name string) string {
	if productType == "" || name == "" {
		return "INVALID-SKU"
	}

	cleanCollection := strings.ToUpper(strings.TrimSpace(collection))
	colCode, ok := collectionCodes[cleanCollection]
	if !ok {
		colCode = nonUpperAlpha.ReplaceAllString(firstN(cleanCollection, 3), "X")
	}

	genCode := "U"
	switch gender {
	case GenderHombre:
		genCode = "H"
	case GenderMujer:
		genCode = "M"
	}

	typeCode := strings.ToUpper(firstN(productType, 3))

	var acronym strings.Builder
	for _, word := range strings.Fields(name) {
		acronym.WriteString(firstN(word, 1))
	}
	nameCode := strings.ToUpper(firstN(acronym.String(), 3))

	return colCode + "-" + typeCode + "-" + genCode + "-" + nameCode
}

// VariantSKU appends color and size codes to a base SKU. Known colors use a
// three-letter shorthand; anything else falls back to its first three
// characters uppercased.
func VariantSKU(baseSKU, color, size string) string {
	colorCode, ok := colorCodes[strings.ToLower(color)]
	if !ok {
		colorCode = strings.ToUpper(firstN(color, 3))
	}
	return baseSKU + "-" + colorCode + "-" + strings.ToUpper(size)
}

func firstN(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
