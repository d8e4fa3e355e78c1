package service

import (
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func teeShirt() *models.Product {
	return &models.Product{
		ID:               "tee",
		Name:             "Crew Tee",
		Price:            decimal.RequireFromString("20.00"),
		ImageURL:         strPtr("tee.png"),
		AdditionalImages: []string{"tee-back.png", "tee.png"},
	}
}

func teeVariants() []models.ProductVariant {
	return []models.ProductVariant{
		{ID: "v1", ProductID: "tee", Size: strPtr("M"), Color: strPtr("Red"), AdditionalPrice: decPtr("0")},
		{ID: "v2", ProductID: "tee", Size: strPtr("XL"), Color: strPtr("Red"), AdditionalPrice: decPtr("3.50"), ImageURL: strPtr("tee-red-xl.png")},
		{ID: "v3", ProductID: "tee", Size: strPtr("M"), Color: strPtr("Blue"), ImageURL: strPtr("tee-blue.png")},
	}
}

func TestResolve_AvailableOptions(t *testing.T) {
	res := Resolve(teeShirt(), nil, teeVariants(), Selection{})

	assert.Equal(t, []string{"M", "XL"}, res.AvailableSizes)
	assert.Equal(t, []string{"Red", "Blue"}, res.AvailableColors)
	assert.True(t, res.SizeBearing)
	assert.True(t, res.SizeRequired)
}

func TestResolve_ExactMatchAdjustsPriceAndImage(t *testing.T) {
	res := Resolve(teeShirt(), nil, teeVariants(), Selection{Size: "XL", Color: "Red"})

	require.NotNil(t, res.Matched)
	assert.Equal(t, "v2", res.Matched.ID)
	assert.True(t, res.EffectivePrice.Equal(decimal.RequireFromString("23.50")))
	assert.Equal(t, []string{"tee-red-xl.png", "tee.png", "tee-back.png"}, res.Images)
	assert.False(t, res.SizeRequired)
}

func TestResolve_ColorOnlyFallbackIsDisplayOnly(t *testing.T) {
	res := Resolve(teeShirt(), nil, teeVariants(), Selection{Color: "Blue"})

	assert.Nil(t, res.Matched)
	require.NotNil(t, res.ImageVariant)
	assert.Equal(t, "v3", res.ImageVariant.ID)
	assert.Equal(t, "tee-blue.png", res.Images[0])
	assert.True(t, res.EffectivePrice.Equal(decimal.RequireFromString("20.00")))
}

func TestResolve_WildcardVariantFields(t *testing.T) {
	product := &models.Product{ID: "flag", Name: "Flag", Price: decimal.RequireFromString("10")}
	variants := []models.ProductVariant{
		{ID: "any-size-green", ProductID: "flag", Color: strPtr("Green"), AdditionalPrice: decPtr("2")},
	}

	res := Resolve(product, nil, variants, Selection{Size: "L", Color: "Green"})

	require.NotNil(t, res.Matched)
	assert.True(t, res.EffectivePrice.Equal(decimal.RequireFromString("12")))
}

func TestResolve_PlaceholderWhenNoImages(t *testing.T) {
	product := &models.Product{ID: "x", Name: "X", Price: decimal.NewFromInt(1)}
	res := Resolve(product, nil, nil, Selection{})
	assert.Equal(t, []string{PlaceholderImage}, res.Images)
}

func TestIsSizeBearing(t *testing.T) {
	plain := &models.Product{ID: "p"}

	tests := []struct {
		name     string
		category *models.Category
		product  *models.Product
		variants []models.ProductVariant
		want     bool
	}{
		{"explicit flag", &models.Category{Name: "Banners", HasSizes: true}, plain, nil, true},
		{"wear in category name", &models.Category{Name: "Work Wear"}, plain, nil, true},
		{"signature in free-text category", nil, &models.Product{ID: "p", Category: strPtr("Signature Collection")}, nil, true},
		{"sized variant", nil, plain, []models.ProductVariant{{Size: strPtr("S")}}, true},
		{"color only variant", nil, plain, []models.ProductVariant{{Color: strPtr("Red")}}, false},
		{"plain banner", &models.Category{Name: "Banners"}, plain, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSizeBearing(tt.category, tt.product, tt.variants))
		})
	}
}

func TestBuildCartItem_RejectsMissingSize(t *testing.T) {
	res := Resolve(teeShirt(), nil, teeVariants(), Selection{Color: "Red"})

	_, err := BuildCartItem(res, Selection{Color: "Red"})
	assert.ErrorIs(t, err, ErrSizeRequired)
}

func TestBuildCartItem_SizedIdentity(t *testing.T) {
	sel := Selection{Size: "XL"}
	product := teeShirt()
	variants := []models.ProductVariant{
		{ID: "v1", ProductID: "tee", Size: strPtr("M")},
		{ID: "v2", ProductID: "tee", Size: strPtr("XL"), AdditionalPrice: decPtr("3.50")},
	}
	res := Resolve(product, nil, variants, sel)

	item, err := BuildCartItem(res, sel)
	require.NoError(t, err)
	assert.Equal(t, "tee-XL", item.ID)
	assert.Equal(t, "Crew Tee (XL)", item.Name)
	assert.Equal(t, "XL", item.Size)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("23.50")))
}

func TestBuildCartItem_PlainProduct(t *testing.T) {
	minQty := 10
	product := &models.Product{ID: "decal", Name: "Decal", Price: decimal.RequireFromString("1.25"), Unit: strPtr("pc"), MinQuantity: &minQty}
	res := Resolve(product, &models.Category{Name: "Decals"}, nil, Selection{})

	item, err := BuildCartItem(res, Selection{})
	require.NoError(t, err)
	assert.Equal(t, "decal", item.ID)
	assert.Equal(t, "Decal", item.Name)
	assert.Equal(t, "pc", item.Unit)
	assert.Equal(t, 10, item.MinQuantity)
	assert.Empty(t, item.ImageURL)
}

func TestDecideAddAction(t *testing.T) {
	plain := &models.Product{ID: "p"}

	assert.Equal(t, AddDirectly, DecideAddAction(plain, &models.Category{Name: "Banners"}, nil))
	assert.Equal(t, RequiresSelection, DecideAddAction(plain, &models.Category{Name: "Banners", HasColors: true}, nil))
	assert.Equal(t, RequiresSelection, DecideAddAction(plain, nil, []models.ProductVariant{{Color: strPtr("Red")}}))
	assert.Equal(t, RequiresSelection, DecideAddAction(plain, &models.Category{Name: "Signature"}, nil))
}

func TestBuildCartItem_RejectsUnofferedOptions(t *testing.T) {
	tests := []struct {
		name  string
		sel   Selection
		field string
	}{
		{"unknown color", Selection{Size: "XL", Color: "Plaid"}, "color"},
		{"size in wrong case", Selection{Size: "xl", Color: "Red"}, "size"},
		{"made up size", Selection{Size: "banana", Color: "Red"}, "size"},
		{"combination without a variant", Selection{Size: "XL", Color: "Blue"}, "color"},
		{"color left unset", Selection{Size: "XL"}, "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(teeShirt(), nil, teeVariants(), tt.sel)

			_, err := BuildCartItem(res, tt.sel)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestBuildCartItem_SurchargedVariantKeepsItsPrice(t *testing.T) {
	sel := Selection{Size: "XL", Color: "Red"}
	res := Resolve(teeShirt(), nil, teeVariants(), sel)

	item, err := BuildCartItem(res, sel)
	require.NoError(t, err)
	assert.Equal(t, "tee-XL-Red", item.ID)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("23.50")))
}

func TestResolve_DefaultSizesForWearWithoutSizedVariants(t *testing.T) {
	product := &models.Product{ID: "cap", Name: "Cap", Price: decimal.RequireFromString("15")}
	category := &models.Category{Name: "Headwear"}

	res := Resolve(product, category, nil, Selection{})
	assert.Equal(t, DefaultSizes, res.AvailableSizes)
	assert.True(t, res.SizeRequired)

	item, err := BuildCartItem(Resolve(product, category, nil, Selection{Size: "2XL"}), Selection{Size: "2XL"})
	require.NoError(t, err)
	assert.Equal(t, "cap-2XL", item.ID)

	_, err = BuildCartItem(Resolve(product, category, nil, Selection{Size: "XXL"}), Selection{Size: "XXL"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "size not available", verr.Fields["size"])
}

func TestBuildCartItem_IgnoresColorWhenNoneOffered(t *testing.T) {
	product := &models.Product{ID: "decal", Name: "Decal", Price: decimal.RequireFromString("2")}
	sel := Selection{Color: "Neon"}

	item, err := BuildCartItem(Resolve(product, nil, nil, sel), sel)
	require.NoError(t, err)
	assert.Equal(t, "decal", item.ID)
	assert.Empty(t, item.Color)
}
