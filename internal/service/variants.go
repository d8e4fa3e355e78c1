package service

import (
	"fmt"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// PlaceholderImage is shown when a product has no image at all.
const PlaceholderImage = "/placeholder.svg"

// DefaultSizes is offered for size-bearing products whose variants carry no sizes.
var DefaultSizes = []string{"S", "M", "L", "XL", "2XL", "3XL"}

// Selection is the shopper's current size/color choice. Empty means unset.
type Selection struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// Resolution is what the product page shows for a selection.
type Resolution struct {
	Product         *models.Product        `json:"-"`
	AvailableSizes  []string               `json:"available_sizes"`
	AvailableColors []string               `json:"available_colors"`
	Matched         *models.ProductVariant `json:"matched_variant,omitempty"`
	ImageVariant    *models.ProductVariant `json:"-"`
	EffectivePrice  decimal.Decimal        `json:"effective_price"`
	Images          []string               `json:"images"`
	SizeBearing     bool                   `json:"size_bearing"`
	SizeRequired    bool                   `json:"size_required"`
	HasVariants     bool                   `json:"-"`
}

// AddAction tells a listing page whether a product can go straight into the
// cart or needs its detail view first.
type AddAction string

const (
	AddDirectly       AddAction = "add_directly"
	RequiresSelection AddAction = "requires_selection"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// distinct returns the non-empty values in first-seen order.
func distinct(variants []models.ProductVariant, field func(models.ProductVariant) *string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, v := range variants {
		val := derefString(field(v))
		if val == "" || seen[val] {
			continue
		}
		seen[val] = true
		out = append(out, val)
	}
	return out
}

// matchesField treats a variant without a value as a wildcard.
func matchesField(variantVal *string, selected string) bool {
	v := derefString(variantVal)
	return v == "" || v == selected
}

// IsSizeBearing reports whether a size must be chosen before adding to cart.
func IsSizeBearing(category *models.Category, product *models.Product, variants []models.ProductVariant) bool {
	if category != nil && category.HasSizes {
		return true
	}
	names := []string{derefString(product.Category)}
	if category != nil {
		names = append(names, category.Name)
	}
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "wear") || strings.Contains(lower, "signature") {
			return true
		}
	}
	for _, v := range variants {
		if derefString(v.Size) != "" {
			return true
		}
	}
	return false
}

// DecideAddAction returns RequiresSelection when the product has any size or
// color options.
func DecideAddAction(product *models.Product, category *models.Category, variants []models.ProductVariant) AddAction {
	if category != nil && (category.HasSizes || category.HasColors) {
		return RequiresSelection
	}
	if len(variants) > 0 {
		return RequiresSelection
	}
	if IsSizeBearing(category, product, nil) {
		return RequiresSelection
	}
	return AddDirectly
}

// Resolve matches sel against the product's variants.
func Resolve(product *models.Product, category *models.Category, variants []models.ProductVariant, sel Selection) Resolution {
	res := Resolution{
		Product:         product,
		AvailableSizes:  distinct(variants, func(v models.ProductVariant) *string { return v.Size }),
		AvailableColors: distinct(variants, func(v models.ProductVariant) *string { return v.Color }),
		EffectivePrice:  product.Price,
		SizeBearing:     IsSizeBearing(category, product, variants),
		HasVariants:     len(variants) > 0,
	}
	if res.SizeBearing && len(res.AvailableSizes) == 0 {
		res.AvailableSizes = append([]string(nil), DefaultSizes...)
	}

	for i := range variants {
		v := &variants[i]
		if matchesField(v.Size, sel.Size) && matchesField(v.Color, sel.Color) {
			res.Matched = v
			break
		}
	}

	// A color-only match supplies the image but never the price.
	res.ImageVariant = res.Matched
	if res.ImageVariant == nil && sel.Color != "" {
		for i := range variants {
			v := &variants[i]
			if derefString(v.Color) == sel.Color && derefString(v.ImageURL) != "" {
				res.ImageVariant = v
				break
			}
		}
	}

	if res.Matched != nil && res.Matched.AdditionalPrice != nil {
		res.EffectivePrice = product.Price.Add(*res.Matched.AdditionalPrice)
	}

	res.Images = imageList(product, res.ImageVariant)
	res.SizeRequired = res.SizeBearing && sel.Size == ""
	return res
}

func imageList(product *models.Product, imageVariant *models.ProductVariant) []string {
	candidates := []string{}
	if imageVariant != nil {
		candidates = append(candidates, derefString(imageVariant.ImageURL))
	}
	candidates = append(candidates, derefString(product.ImageURL))
	candidates = append(candidates, product.AdditionalImages...)

	seen := make(map[string]bool)
	images := []string{}
	for _, img := range candidates {
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		images = append(images, img)
	}
	if len(images) == 0 {
		images = append(images, PlaceholderImage)
	}
	return images
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// validateSelection accepts only offered sizes and colors. A size-bearing
// product with variants must also match one of them exactly, so the line
// price always comes from a real variant.
func validateSelection(res Resolution, sel Selection) error {
	fields := map[string]string{}
	if res.SizeBearing && !contains(res.AvailableSizes, sel.Size) {
		fields["size"] = "size not available"
	}
	if sel.Color != "" && len(res.AvailableColors) > 0 && !contains(res.AvailableColors, sel.Color) {
		fields["color"] = "color not available"
	}
	if len(fields) == 0 && res.SizeBearing && res.HasVariants && res.Matched == nil {
		if sel.Color == "" && len(res.AvailableColors) > 0 {
			fields["color"] = "select color"
		} else {
			fields["color"] = "combination not available"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// BuildCartItem turns a resolution into a cart line. Size-bearing products
// without a size are rejected with ErrSizeRequired, unknown options with a
// ValidationError.
func BuildCartItem(res Resolution, sel Selection) (cart.Item, error) {
	if res.SizeRequired || (res.SizeBearing && sel.Size == "") {
		return cart.Item{}, ErrSizeRequired
	}
	if err := validateSelection(res, sel); err != nil {
		return cart.Item{}, err
	}
	if len(res.AvailableColors) == 0 {
		sel.Color = ""
	}

	p := res.Product
	item := cart.Item{
		ID:        p.ID,
		ProductID: p.ID,
		Name:      p.Name,
		Price:     res.EffectivePrice,
		Color:     sel.Color,
		ImageURL:  res.Images[0],
		Unit:      derefString(p.Unit),
	}
	if res.SizeBearing {
		item.ID = fmt.Sprintf("%s-%s", p.ID, sel.Size)
		item.Name = fmt.Sprintf("%s (%s)", p.Name, sel.Size)
		item.Size = sel.Size
	}
	// Different colors of one product are separate lines.
	if sel.Color != "" && len(res.AvailableColors) > 0 {
		item.ID = fmt.Sprintf("%s-%s", item.ID, sel.Color)
	}
	if item.ImageURL == PlaceholderImage {
		item.ImageURL = ""
	}
	if p.MinQuantity != nil {
		item.MinQuantity = *p.MinQuantity
	}
	if p.MaxQuantity != nil {
		item.MaxQuantity = *p.MaxQuantity
	}
	return item, nil
}
