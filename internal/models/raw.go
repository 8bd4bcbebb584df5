package models

// RawExtraction is what the field extractor read from a product page before
// any cleaning. Every field is always present; missing values are empty.
type RawExtraction struct {
	SourceURL      string
	Title          string
	Price          string
	OldPrice       string
	Article        string
	Description    string
	Manufacturer   string
	Category       string
	Availability   string
	InStock        bool
	StockQuantity  string
	Specifications Specs
	Images         []string
	DeliveryInfo   []DeliveryInfo
}

func NewRawExtraction() *RawExtraction {
	return &RawExtraction{
		Specifications: Specs{},
		Images:         []string{},
		DeliveryInfo:   []DeliveryInfo{},
	}
}
