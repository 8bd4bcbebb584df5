package events

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/parts-catalog-importer/internal/models"
)

func TestNewProductImported(t *testing.T) {
	p := models.NewProductRecord("2498")
	p.Title = "Ролик двери"
	p.Price = "1 200 ₽"
	p.PriceAmount = decimal.NewNullDecimal(decimal.RequireFromString("1200"))
	p.SourceURL = "https://snab-lift.ru/catalog/rolik-2498.html"

	payload := NewProductImported(p)
	assert.Equal(t, "PRODUCT_IMPORTED", payload.EventType)
	assert.NotEmpty(t, payload.EventID)
	require.NotNil(t, payload.PriceAmount)
	assert.Equal(t, "1200", *payload.PriceAmount)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2498", decoded["article"])
	assert.Equal(t, Source, decoded["source"])
	assert.NotContains(t, decoded, "weight")
}

func TestNewProductImportedWithoutAmount(t *testing.T) {
	p := models.NewProductRecord("2498")
	assert.Nil(t, NewProductImported(p).PriceAmount)
}

func TestNewProductDeleted(t *testing.T) {
	payload := NewProductDeleted("2498")
	assert.Equal(t, "PRODUCT_DELETED", payload.EventType)
	assert.Equal(t, "2498", payload.Article)
}
