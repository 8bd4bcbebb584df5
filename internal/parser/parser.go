package parser

import (
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// Parser turns a product page into a RawExtraction. Implementations never
// fail: a field they cannot find is left empty.
type Parser interface {
	Extract(html string) *models.RawExtraction
}

var _ Parser = (*Extractor)(nil)
