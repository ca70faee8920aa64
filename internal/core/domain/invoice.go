package domain

import (
	"encoding/json"
	"time"
)

// Party identifies an issuer or receiver of a document.
type Party struct {
	ID   string
	Name string
	Type string

	// Address is kept verbatim as returned by the detail endpoint.
	Address json.RawMessage
}

// DocumentSummary is the lightweight record returned by a search.
// It is never persisted directly; it seeds a Document.
type DocumentSummary struct {
	UUID         string
	SubmissionID string
	InternalID   string
	TypeName     string
	TypeVersion  string
	Issuer       Party
	Receiver     Party
	IssuedAt     time.Time
	ReceivedAt   time.Time
	Total        float64
	Status       string
}

// TaxItem is one entry of a line's tax breakdown.
type TaxItem struct {
	TaxType string  `json:"taxType"`
	SubType string  `json:"subType,omitempty"`
	Amount  float64 `json:"amount"`
	Rate    float64 `json:"rate"`
}

// TaxTotal is a document-level tax aggregate.
type TaxTotal struct {
	TaxType string  `json:"taxType"`
	Amount  float64 `json:"amount"`
}

// LineItem is one invoice line. It has no identity outside its Document;
// its ordinal is its position in Document.Lines.
type LineItem struct {
	Description    string
	ItemCode       string
	ItemType       string
	InternalCode   string
	UnitType       string
	Quantity       float64
	UnitPrice      float64
	SalesTotal     float64
	DiscountRate   float64
	DiscountAmount float64
	NetTotal       float64
	TotalAmount    float64
	Taxes          []TaxItem
}

// DocumentDetail is optional enrichment fetched per document.
// Every field may be absent: nil pointers and empty strings mean
// the remote payload did not carry the value.
type DocumentDetail struct {
	UUID         string
	SubmissionID string
	Status       string
	ReceivedAt   *time.Time

	// HasDocument is false when the nested document container was missing.
	HasDocument bool

	InternalID    string
	TypeName      string
	TypeVersion   string
	IssuedAt      *time.Time
	Issuer        *Party
	Receiver      *Party
	NetAmount     *float64
	TotalSales    *float64
	TotalDiscount *float64
	TotalAmount   *float64
	TaxTotals     []TaxTotal
	Lines         []LineItem

	ValidationStatus string
}

// Document is the persisted merge of a DocumentSummary with its optional
// DocumentDetail, keyed by UUID. It owns its Lines.
type Document struct {
	UUID         string
	SubmissionID string
	InternalID   string
	TypeName     string
	TypeVersion  string
	Status       string
	Issuer       Party
	Receiver     Party
	IssuedAt     time.Time
	ReceivedAt   time.Time

	// Total is the grand total; the detail's total amount wins over the summary's.
	Total float64

	// Detail-only amounts; nil when no detail was available.
	NetAmount     *float64
	TotalSales    *float64
	TotalDiscount *float64

	TaxTotals        []TaxTotal
	ValidationStatus string
	Lines            []LineItem

	// HasDetail records whether a detail payload contributed to this document.
	HasDetail bool
}

// MergeDocument builds the persisted Document from a summary and an optional
// detail. Field precedence:
//
//	field                         source
//	uuid                          summary (detail never rekeys a document)
//	submissionId, internalId      detail if non-empty, else summary
//	typeName, typeVersion         detail if non-empty, else summary
//	status                        detail if non-empty, else summary
//	issuer/receiver id,name,type  detail if non-empty, else summary (per field)
//	issuer/receiver address       detail only
//	issuedAt, receivedAt          detail if present, else summary
//	total                         detail totalAmount if present, else summary total
//	netAmount, totalSales,
//	totalDiscount, taxTotals,
//	validationStatus, lines       detail only (absent without detail)
func MergeDocument(summary DocumentSummary, detail *DocumentDetail) Document {
	doc := Document{
		UUID:         summary.UUID,
		SubmissionID: summary.SubmissionID,
		InternalID:   summary.InternalID,
		TypeName:     summary.TypeName,
		TypeVersion:  summary.TypeVersion,
		Status:       summary.Status,
		Issuer:       summary.Issuer,
		Receiver:     summary.Receiver,
		IssuedAt:     summary.IssuedAt,
		ReceivedAt:   summary.ReceivedAt,
		Total:        summary.Total,
	}
	if detail == nil {
		return doc
	}

	doc.HasDetail = true
	doc.SubmissionID = firstNonEmpty(detail.SubmissionID, doc.SubmissionID)
	doc.Status = firstNonEmpty(detail.Status, doc.Status)
	if detail.ReceivedAt != nil {
		doc.ReceivedAt = *detail.ReceivedAt
	}
	doc.ValidationStatus = detail.ValidationStatus

	if !detail.HasDocument {
		return doc
	}

	doc.InternalID = firstNonEmpty(detail.InternalID, doc.InternalID)
	doc.TypeName = firstNonEmpty(detail.TypeName, doc.TypeName)
	doc.TypeVersion = firstNonEmpty(detail.TypeVersion, doc.TypeVersion)
	if detail.IssuedAt != nil {
		doc.IssuedAt = *detail.IssuedAt
	}
	doc.Issuer = mergeParty(doc.Issuer, detail.Issuer)
	doc.Receiver = mergeParty(doc.Receiver, detail.Receiver)
	if detail.TotalAmount != nil {
		doc.Total = *detail.TotalAmount
	}
	doc.NetAmount = detail.NetAmount
	doc.TotalSales = detail.TotalSales
	doc.TotalDiscount = detail.TotalDiscount
	doc.TaxTotals = detail.TaxTotals
	doc.Lines = detail.Lines
	return doc
}

func mergeParty(base Party, override *Party) Party {
	if override == nil {
		return base
	}
	return Party{
		ID:      firstNonEmpty(override.ID, base.ID),
		Name:    firstNonEmpty(override.Name, base.Name),
		Type:    firstNonEmpty(override.Type, base.Type),
		Address: override.Address,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
