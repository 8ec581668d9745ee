package domain

// EmailCategory is the fixed label set produced by the categorization model.
type EmailCategory string

const (
	CategoryClientCommunication  EmailCategory = "CLIENT_COMMUNICATION"
	CategoryMarketResearch       EmailCategory = "MARKET_RESEARCH"
	CategoryRegulatoryCompliance EmailCategory = "REGULATORY_COMPLIANCE"
	CategoryFinancialReporting   EmailCategory = "FINANCIAL_REPORTING"
	CategoryTransactionAlerts    EmailCategory = "TRANSACTION_ALERTS"
	CategoryInternalOperations   EmailCategory = "INTERNAL_OPERATIONS"
	CategoryVendorServices       EmailCategory = "VENDOR_SERVICES"
	CategoryMarketingSales       EmailCategory = "MARKETING_SALES"
	CategoryEducationalContent   EmailCategory = "EDUCATIONAL_CONTENT"
	CategoryOther                EmailCategory = "OTHER"
)

// AllCategories lists every valid category in prompt order.
var AllCategories = []EmailCategory{
	CategoryClientCommunication,
	CategoryMarketResearch,
	CategoryRegulatoryCompliance,
	CategoryFinancialReporting,
	CategoryTransactionAlerts,
	CategoryInternalOperations,
	CategoryVendorServices,
	CategoryMarketingSales,
	CategoryEducationalContent,
	CategoryOther,
}

func (c EmailCategory) Valid() bool {
	for _, v := range AllCategories {
		if c == v {
			return true
		}
	}
	return false
}

// CategorizationResult is the model's verdict for a single email.
type CategorizationResult struct {
	Category   EmailCategory `json:"category"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}
