package eta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// searchResponse is the body of GET /documents/search.
type searchResponse struct {
	Result   []summaryJSON `json:"result"`
	Metadata struct {
		ContinuationToken string `json:"continuationToken"`
	} `json:"metadata"`
}

type summaryJSON struct {
	UUID             string  `json:"uuid"`
	SubmissionUUID   string  `json:"submissionUUID"`
	InternalID       string  `json:"internalId"`
	TypeName         string  `json:"typeName"`
	TypeVersionName  string  `json:"typeVersionName"`
	IssuerID         string  `json:"issuerId"`
	IssuerName       string  `json:"issuerName"`
	IssuerType       string  `json:"issuerType"`
	ReceiverID       string  `json:"receiverId"`
	ReceiverName     string  `json:"receiverName"`
	ReceiverType     string  `json:"receiverType"`
	DateTimeIssued   string  `json:"dateTimeIssued"`
	DateTimeReceived string  `json:"dateTimeReceived"`
	Total            float64 `json:"total"`
	Status           string  `json:"status"`
}

func (s summaryJSON) toDomain() domain.DocumentSummary {
	return domain.DocumentSummary{
		UUID:         s.UUID,
		SubmissionID: s.SubmissionUUID,
		InternalID:   s.InternalID,
		TypeName:     s.TypeName,
		TypeVersion:  s.TypeVersionName,
		Issuer:       domain.Party{ID: s.IssuerID, Name: s.IssuerName, Type: s.IssuerType},
		Receiver:     domain.Party{ID: s.ReceiverID, Name: s.ReceiverName, Type: s.ReceiverType},
		IssuedAt:     parseTime(s.DateTimeIssued),
		ReceivedAt:   parseTime(s.DateTimeReceived),
		Total:        s.Total,
		Status:       s.Status,
	}
}

// detailResponse is the body of GET /documents/{uuid}/details and /raw.
// The API spells dateTimeRecevied with a typo; both spellings are read.
type detailResponse struct {
	UUID              string          `json:"uuid"`
	SubmissionUUID    string          `json:"submissionUUID"`
	Status            string          `json:"status"`
	DateTimeRecevied  string          `json:"dateTimeRecevied"`
	DateTimeReceived  string          `json:"dateTimeReceived"`
	Document          json.RawMessage `json:"document"`
	ValidationResults *struct {
		Status string `json:"status"`
	} `json:"validationResults"`
}

type documentJSON struct {
	Issuer              *partyJSON     `json:"issuer"`
	Receiver            *partyJSON     `json:"receiver"`
	DocumentType        string         `json:"documentType"`
	DocumentTypeVersion string         `json:"documentTypeVersion"`
	DateTimeIssued      string         `json:"dateTimeIssued"`
	InternalID          string         `json:"internalId"`
	TotalSalesAmount    *float64       `json:"totalSalesAmount"`
	TotalDiscountAmount *float64       `json:"totalDiscountAmount"`
	NetAmount           *float64       `json:"netAmount"`
	TotalAmount         *float64       `json:"totalAmount"`
	TaxTotals           []taxTotalJSON `json:"taxTotals"`
	InvoiceLines        []lineJSON     `json:"invoiceLines"`
}

type partyJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Address json.RawMessage `json:"address"`
}

type taxTotalJSON struct {
	TaxType string  `json:"taxType"`
	Amount  float64 `json:"amount"`
}

type lineJSON struct {
	Description  string  `json:"description"`
	ItemType     string  `json:"itemType"`
	ItemCode     string  `json:"itemCode"`
	InternalCode string  `json:"internalCode"`
	UnitType     string  `json:"unitType"`
	Quantity     float64 `json:"quantity"`
	UnitValue    *struct {
		AmountEGP float64 `json:"amountEGP"`
	} `json:"unitValue"`
	SalesTotal float64 `json:"salesTotal"`
	NetTotal   float64 `json:"netTotal"`
	Total      float64 `json:"total"`
	Discount   *struct {
		Rate   float64 `json:"rate"`
		Amount float64 `json:"amount"`
	} `json:"discount"`
	TaxableItems     []taxItemJSON `json:"taxableItems"`
	LineTaxableItems []taxItemJSON `json:"lineTaxableItems"`
}

type taxItemJSON struct {
	TaxType string  `json:"taxType"`
	SubType string  `json:"subType"`
	Amount  float64 `json:"amount"`
	Rate    float64 `json:"rate"`
}

func (d detailResponse) toDomain() (*domain.DocumentDetail, error) {
	detail := &domain.DocumentDetail{
		UUID:         d.UUID,
		SubmissionID: d.SubmissionUUID,
		Status:       d.Status,
	}
	received := d.DateTimeRecevied
	if received == "" {
		received = d.DateTimeReceived
	}
	detail.ReceivedAt = parseTimePtr(received)
	if d.ValidationResults != nil {
		detail.ValidationStatus = d.ValidationResults.Status
	}

	doc, err := decodeDocument(d.Document)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return detail, nil
	}

	detail.HasDocument = true
	detail.InternalID = doc.InternalID
	detail.TypeName = doc.DocumentType
	detail.TypeVersion = doc.DocumentTypeVersion
	detail.IssuedAt = parseTimePtr(doc.DateTimeIssued)
	detail.Issuer = doc.Issuer.toDomain()
	detail.Receiver = doc.Receiver.toDomain()
	detail.NetAmount = doc.NetAmount
	detail.TotalSales = doc.TotalSalesAmount
	detail.TotalDiscount = doc.TotalDiscountAmount
	detail.TotalAmount = doc.TotalAmount

	for _, t := range doc.TaxTotals {
		detail.TaxTotals = append(detail.TaxTotals, domain.TaxTotal{TaxType: t.TaxType, Amount: t.Amount})
	}
	for _, l := range doc.InvoiceLines {
		detail.Lines = append(detail.Lines, l.toDomain())
	}
	return detail, nil
}

// decodeDocument accepts the nested document as an object or as a
// JSON-encoded string. It returns nil when the container is absent.
func decodeDocument(raw json.RawMessage) (*documentJSON, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: document string: %v", domain.ErrInvalidInput, err)
		}
		if encoded == "" {
			return nil, nil
		}
		raw = []byte(encoded)
	}

	var doc documentJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: document: %v", domain.ErrInvalidInput, err)
	}
	return &doc, nil
}

func (p *partyJSON) toDomain() *domain.Party {
	if p == nil {
		return nil
	}
	party := &domain.Party{ID: p.ID, Name: p.Name, Type: p.Type}
	if addr := bytes.TrimSpace(p.Address); len(addr) > 0 && !bytes.Equal(addr, []byte("null")) {
		party.Address = append(json.RawMessage(nil), addr...)
	}
	return party
}

func (l lineJSON) toDomain() domain.LineItem {
	item := domain.LineItem{
		Description:  l.Description,
		ItemCode:     l.ItemCode,
		ItemType:     l.ItemType,
		InternalCode: l.InternalCode,
		UnitType:     l.UnitType,
		Quantity:     l.Quantity,
		SalesTotal:   l.SalesTotal,
		NetTotal:     l.NetTotal,
		TotalAmount:  l.Total,
	}
	if l.UnitValue != nil {
		item.UnitPrice = l.UnitValue.AmountEGP
	}
	if l.Discount != nil {
		item.DiscountRate = l.Discount.Rate
		item.DiscountAmount = l.Discount.Amount
	}

	taxes := l.TaxableItems
	if len(taxes) == 0 {
		taxes = l.LineTaxableItems
	}
	for _, t := range taxes {
		item.Taxes = append(item.Taxes, domain.TaxItem{TaxType: t.TaxType, SubType: t.SubType, Amount: t.Amount, Rate: t.Rate})
	}
	return item
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(value string) *time.Time {
	t := parseTime(value)
	if t.IsZero() {
		return nil
	}
	return &t
}
