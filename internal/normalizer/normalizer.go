package normalizer

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

const DefaultMaxImages = 10

var (
	dimensionLabels = []string{"высота", "ширина", "длина", "диаметр", "height", "width", "length", "diameter"}
	weightLabels    = []string{"вес", "weight"}
	articleLabels   = []string{"Артикул:", "Артикул", "Арт.", "Article:", "SKU:"}

	priceNumber = regexp.MustCompile(`\d[\d\s\x{00A0}\x{202F}.,]*`)
)

type Normalizer struct {
	baseURL   string
	maxImages int
}

func New(baseURL string, maxImages int) *Normalizer {
	if maxImages < 1 {
		maxImages = DefaultMaxImages
	}
	return &Normalizer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxImages: maxImages,
	}
}

// Normalize builds a ProductRecord from raw and returns a *catalog.ValidationError
// alongside it when required fields are missing or malformed.
func (n *Normalizer) Normalize(raw *models.RawExtraction) (*models.ProductRecord, error) {
	rec := n.build(raw)
	if err := catalog.Validate(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Normalize cleans raw against baseURL with the default image cap and no validation.
func Normalize(raw *models.RawExtraction, baseURL string) *models.ProductRecord {
	return New(baseURL, DefaultMaxImages).build(raw)
}

func (n *Normalizer) build(raw *models.RawExtraction) *models.ProductRecord {
	if raw == nil {
		raw = models.NewRawExtraction()
	}

	now := time.Now()
	rec := &models.ProductRecord{
		ID:             uuid.New(),
		Article:        CleanArticle(raw.Article),
		Title:          collapse(raw.Title),
		Manufacturer:   collapse(raw.Manufacturer),
		Category:       collapse(raw.Category),
		Price:          collapse(raw.Price),
		PriceAmount:    ParsePrice(raw.Price),
		OldPrice:       collapse(raw.OldPrice),
		Description:    strings.TrimSpace(raw.Description),
		SourceURL:      NormalizeURL(raw.SourceURL, n.baseURL),
		Availability:   collapse(raw.Availability),
		InStock:        raw.InStock,
		SiteStock:      collapse(raw.StockQuantity),
		Dimensions:     make(map[string]string),
		Specifications: models.Specs{},
		Images:         n.images(raw.Images),
		DeliveryInfo:   make([]models.DeliveryInfo, 0, len(raw.DeliveryInfo)),
		Stock:          models.StockEntry{UpdatedAt: now},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	fold := cases.Fold()
	for _, spec := range raw.Specifications {
		key := strings.TrimSpace(strings.TrimRight(collapse(spec.Key), ":"))
		value := collapse(spec.Value)
		if key == "" || value == "" {
			continue
		}
		rec.Specifications.Set(key, value)

		label := fold.String(key)
		switch {
		case matchesLabel(fold, label, dimensionLabels):
			rec.Dimensions[key] = value
		case rec.Weight == "" && matchesLabel(fold, label, weightLabels):
			rec.Weight = value
		}
	}

	for _, d := range raw.DeliveryInfo {
		title := collapse(d.Title)
		if title == "" {
			continue
		}
		rec.DeliveryInfo = append(rec.DeliveryInfo, models.DeliveryInfo{Title: title, Content: collapse(d.Content)})
	}

	return rec
}

func (n *Normalizer) images(raw []string) []string {
	images := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, src := range raw {
		if len(images) >= n.maxImages {
			break
		}
		u := NormalizeURL(src, n.baseURL)
		if !IsAbsoluteURL(u) {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		images = append(images, u)
	}

	return images
}

// NormalizeURL turns scheme-relative and root-relative references into
// absolute ones. Anything else is returned unchanged.
func NormalizeURL(raw, baseURL string) string {
	u := strings.TrimSpace(raw)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return strings.TrimRight(baseURL, "/") + u
	default:
		return u
	}
}

func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// CleanArticle strips a leading "Артикул:"-style label from the article text.
func CleanArticle(raw string) string {
	a := collapse(raw)
	for _, label := range articleLabels {
		if len(a) >= len(label) && strings.EqualFold(a[:len(label)], label) {
			return strings.TrimSpace(a[len(label):])
		}
	}
	return a
}

// ParsePrice reads the first number out of a display price such as
// "1 234,50 ₽". Spaces and no-break spaces group thousands; the last comma
// or dot is the decimal separator.
func ParsePrice(display string) decimal.NullDecimal {
	m := priceNumber.FindString(display)
	if m == "" {
		return decimal.NullDecimal{}
	}

	m = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00A0', '\u202F', '\t', '\n':
			return -1
		}
		return r
	}, m)
	m = strings.TrimRight(m, ".,")

	if i := strings.LastIndexAny(m, ".,"); i >= 0 {
		intPart := strings.NewReplacer(".", "", ",", "").Replace(m[:i])
		frac := m[i+1:]
		// "1.234" or "1,234" with three trailing digits and no other separator is ambiguous;
		// the catalog prints kopecks with two digits, so three means thousands.
		if len(frac) == 3 && !strings.ContainsAny(m[:i], ".,") {
			m = intPart + frac
		} else {
			m = intPart + "." + frac
		}
	}

	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func matchesLabel(fold cases.Caser, label string, labels []string) bool {
	for _, l := range labels {
		if label == fold.String(l) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
