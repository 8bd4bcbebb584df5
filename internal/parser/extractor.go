package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/parts-catalog-importer/internal/models"
	"github.com/maltedev/parts-catalog-importer/internal/normalizer"
)

type Field string

const (
	FieldTitle         Field = "title"
	FieldPrice         Field = "price"
	FieldOldPrice      Field = "price_old"
	FieldArticle       Field = "article"
	FieldDescription   Field = "description"
	FieldManufacturer  Field = "manufacturer"
	FieldCategory      Field = "category"
	FieldAvailability  Field = "availability"
	FieldStockQuantity Field = "stock_quantity"
)

var (
	imagePathMarkers = []string{"products", "upload"}
	imageExtensions  = []string{".jpg", ".jpeg", ".png", ".webp"}
	inStockMarkers   = []string{"в наличии", "есть"}
	outOfStockMarker = "нет в наличии"
)

// DefaultStrategies is the lookup order used for the catalog's product pages.
func DefaultStrategies() map[Field][]Strategy {
	return map[Field][]Strategy{
		FieldTitle:         {FirstText("h1")},
		FieldPrice:         {FirstText(".price_value"), FirstText(".current-price"), FirstText(".price")},
		FieldOldPrice:      {FirstText(".old_price")},
		FieldArticle:       {FirstText(".product-article")},
		FieldDescription:   {FirstText("#prod-desc")},
		FieldManufacturer:  {Labelled(".product-sidebar-vendor", "Производитель:", "Manufacturer:")},
		FieldCategory:      {Trail(".breadcrumb a, .breadcrumbs a", 2)},
		FieldAvailability:  {FirstText(".availability"), FirstText(".in-stock")},
		FieldStockQuantity: {FirstText(".stock-quantity"), FirstText(".product-quantity")},
	}
}

type Extractor struct {
	baseURL    string
	maxImages  int
	strategies map[Field][]Strategy
}

func NewExtractor(baseURL string, maxImages int) *Extractor {
	if maxImages < 1 {
		maxImages = normalizer.DefaultMaxImages
	}
	return &Extractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxImages:  maxImages,
		strategies: DefaultStrategies(),
	}
}

// Append adds fallback strategies for a field after the existing ones.
func (e *Extractor) Append(field Field, strategies ...Strategy) {
	e.strategies[field] = append(e.strategies[field], strategies...)
}

func (e *Extractor) Extract(html string) *models.RawExtraction {
	raw := models.NewRawExtraction()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return raw
	}

	raw.Title = e.field(doc, FieldTitle)
	raw.Price = e.field(doc, FieldPrice)
	raw.OldPrice = e.field(doc, FieldOldPrice)
	raw.Article = e.field(doc, FieldArticle)
	raw.Description = e.field(doc, FieldDescription)
	raw.Manufacturer = e.field(doc, FieldManufacturer)
	raw.Category = e.field(doc, FieldCategory)
	raw.Availability = e.field(doc, FieldAvailability)
	raw.InStock = isInStock(raw.Availability)
	raw.StockQuantity = e.field(doc, FieldStockQuantity)
	raw.Specifications = extractSpecifications(doc)
	raw.DeliveryInfo = extractDelivery(doc)
	raw.Images = e.extractImages(doc)

	return raw
}

// ExtractPage is Extract plus the page URL, which the page itself does not carry.
func (e *Extractor) ExtractPage(html, pageURL string) *models.RawExtraction {
	raw := e.Extract(html)
	raw.SourceURL = pageURL
	return raw
}

func (e *Extractor) field(doc *goquery.Document, f Field) string {
	return cascade(doc, e.strategies[f])
}

func extractSpecifications(doc *goquery.Document) models.Specs {
	specs := models.Specs{}

	doc.Find(".product-sidebar-char").Each(func(_ int, row *goquery.Selection) {
		spans := row.Find("span")
		if spans.Length() < 2 {
			return
		}
		key := strings.TrimSpace(strings.ReplaceAll(text(spans.Eq(0)), ":", ""))
		value := text(spans.Eq(1))
		if key == "" || value == "" {
			return
		}
		specs.Set(key, value)
	})

	return specs
}

func extractDelivery(doc *goquery.Document) []models.DeliveryInfo {
	delivery := []models.DeliveryInfo{}

	doc.Find(".product-sidebar-delivery").Each(func(_ int, block *goquery.Selection) {
		titleSel := block.Find(".product-sidebar-title").First()
		title := text(titleSel)
		if title == "" {
			return
		}

		content := text(block.Find("div").Not(".product-sidebar-title").First())
		if content == "" {
			content = strings.TrimSpace(strings.Replace(text(block), title, "", 1))
		}

		delivery = append(delivery, models.DeliveryInfo{Title: title, Content: content})
	})

	return delivery
}

func (e *Extractor) extractImages(doc *goquery.Document) []string {
	images := []string{}
	seen := make(map[string]struct{})

	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		if !isProductImage(src) {
			return true
		}

		u := normalizer.NormalizeURL(src, e.baseURL)
		if !normalizer.IsAbsoluteURL(u) {
			return true
		}
		if _, ok := seen[u]; ok {
			return true
		}
		seen[u] = struct{}{}
		images = append(images, u)

		return len(images) < e.maxImages
	})

	return images
}

func isProductImage(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)

	hasMarker := false
	for _, m := range imagePathMarkers {
		if strings.Contains(lower, m) {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		return false
	}

	path := lower
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func isInStock(availability string) bool {
	lower := strings.ToLower(availability)
	if strings.Contains(lower, outOfStockMarker) {
		return false
	}
	for _, m := range inStockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
