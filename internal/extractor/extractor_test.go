package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper/scrapertest"
)

const listing = `<html><body>
<ul class="products">
  <li class="product" data-sku="111">
    <h3 class="title">  Ibalgin
       400 mg </h3>
    <span class="price">3,99 €</span>
    <span class="stock">Skladom</span>
    <a class="link" href="/p/ibalgin">detail</a>
  </li>
  <li class="product" data-sku="222">
    <h3 class="title">Paralen 500</h3>
    <span class="price">2,49 €</span>
    <span class="stock">Nedostupné</span>
  </li>
</ul>
<div id="detail"><h1>Ibalgin 400</h1><span class="price">4,10 €</span></div>
</body></html>`

func rowRules() models.ExtractionRules {
	return models.ExtractionRules{RuleSet: models.RuleSet{
		IterateRows: "li.product",
		Fields: map[string]models.FieldRule{
			models.FieldName:         {Selector: ".title"},
			models.FieldPrice:        {Selector: ".price", Type: models.FieldNumber},
			models.FieldAvailability: {Selector: ".stock"},
			"url":                    {Selector: "a.link", Type: models.FieldAttribute, Attribute: "href"},
		},
	}}
}

func TestExtract_Rows(t *testing.T) {
	res := ExtractHTML(listing, rowRules())
	require.NoError(t, res.Err)
	assert.Equal(t, models.StatusOK, res.Status)

	rows := res.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "Ibalgin 400 mg", rows[0].Name)
	assert.Equal(t, "3,99 €", rows[0].PriceText)
	assert.Equal(t, "Skladom", rows[0].AvailabilityText)
	assert.Equal(t, "/p/ibalgin", rows[0].Fields["url"])
	assert.Contains(t, rows[0].RawHTML, `data-sku="111"`)
	assert.Equal(t, "", rows[1].Fields["url"], "missing element yields empty value")
	assert.Equal(t, "Paralen 500", rows[1].Name)
}

func TestExtract_SingleResult(t *testing.T) {
	rules := models.ExtractionRules{RuleSet: models.RuleSet{
		Fields: map[string]models.FieldRule{
			models.FieldName:  {Selector: "#detail h1"},
			models.FieldPrice: {Selector: "#detail .price"},
		},
	}}

	res := ExtractHTML(listing, rules)
	require.NoError(t, res.Err)
	assert.Nil(t, res.Rows())
	assert.Equal(t, map[string]string{"name": "Ibalgin 400", "price": "4,10 €"}, res.Fields())
}

func TestExtract_FallbackOnZeroRows(t *testing.T) {
	rules := rowRules()
	rules.IterateRows = ".search-result"
	rules.Fallback = &models.RuleSet{
		IterateRows: "ul.products > li",
		Fields:      map[string]models.FieldRule{models.FieldName: {Selector: "h3"}},
	}

	res := ExtractHTML(listing, rules)
	require.NoError(t, res.Err)
	require.Len(t, res.Rows(), 2)
	assert.Equal(t, "Paralen 500", res.Rows()[1].Name)
}

func TestExtract_FallbackOnInvalidSelector(t *testing.T) {
	rules := rowRules()
	rules.Fields = map[string]models.FieldRule{models.FieldName: {Selector: "h3[["}}
	rules.Fallback = &models.RuleSet{Fields: map[string]models.FieldRule{models.FieldName: {Selector: "#detail h1"}}}

	res := ExtractHTML(listing, rules)
	require.NoError(t, res.Err)
	assert.Equal(t, "Ibalgin 400", res.Fields()[models.FieldName])
}

func TestExtract_ZeroRowsWithoutFallback(t *testing.T) {
	rules := rowRules()
	rules.IterateRows = ".nothing"

	res := ExtractHTML(listing, rules)
	assert.Equal(t, models.StatusError, res.Status)
	var ee *ExtractionError
	require.True(t, errors.As(res.Err, &ee))
	assert.True(t, errors.Is(res.Err, ErrNoRows))
	assert.Empty(t, res.Rows())
}

func TestExtract_BothFailKeepsPartial(t *testing.T) {
	rules := models.ExtractionRules{
		RuleSet: models.RuleSet{Fields: map[string]models.FieldRule{
			"a": {Selector: "#detail h1"},
			"b": {Selector: "h3[["},
		}},
		Fallback: &models.RuleSet{IterateRows: ".none", Fields: map[string]models.FieldRule{"a": {Selector: "h1"}}},
	}

	res := ExtractHTML(listing, rules)
	assert.Equal(t, models.StatusError, res.Status)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, ErrNoRows))
	assert.NotNil(t, res.Raw, "partial data is still returned")
}

func TestFromSession(t *testing.T) {
	sess := scrapertest.NewSession(listing)
	res := FromSession(context.Background(), sess, rowRules())
	require.NoError(t, res.Err)
	assert.Len(t, res.Rows(), 2)
	assert.Equal(t, []string{"html"}, sess.Calls)
}

func TestFromSession_ReadError(t *testing.T) {
	sess := scrapertest.NewSession(listing)
	sess.Errors["html"] = errors.New("target closed")

	res := FromSession(context.Background(), sess, rowRules())
	assert.Equal(t, models.StatusError, res.Status)
	assert.ErrorContains(t, res.Err, "target closed")
}

func TestCollapse(t *testing.T) {
	assert.Equal(t, "a b c", collapse("  a\n\t b   c "))
	assert.Equal(t, "", collapse(" \n "))
}
