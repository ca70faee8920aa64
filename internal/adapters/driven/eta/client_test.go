package eta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/etasync/internal/adapters/driven/transport"
	"github.com/custodia-labs/etasync/internal/core/domain"
)

// mockGetter records requested URLs and replies with canned bodies.
type mockGetter struct {
	urls   []string
	bodies map[string]string
	err    error
}

func (m *mockGetter) Get(_ context.Context, rawURL string) (*transport.Response, error) {
	m.urls = append(m.urls, rawURL)
	if m.err != nil {
		return nil, m.err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(m.bodies[u.Path])}, nil
}

var testSettings = domain.APISettings{
	BaseURL:      "https://api.example.test/",
	PathPrefix:   "/api/v1.0",
	DetailSource: domain.DetailSourceDetails,
}

const searchBody = `{
  "result": [
    {"uuid": "U1", "submissionUUID": "S1", "internalId": "INV-1", "typeName": "I", "typeVersionName": "1.0",
     "issuerId": "100", "issuerName": "Issuer Co", "receiverId": "200", "receiverName": "Buyer Co",
     "dateTimeIssued": "2024-05-01T10:00:00Z", "dateTimeReceived": "2024-05-01T10:05:00.123Z",
     "total": 114, "status": "Valid"},
    {"uuid": "", "internalId": "broken"}
  ],
  "metadata": {"continuationToken": "T2"}
}`

func TestClient_SearchFirstPage(t *testing.T) {
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/search": searchBody}}
	client := NewClient(getter, testSettings)

	window := &domain.Window{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 2, 3, 0, 0, 0, time.FixedZone("EET", 3*3600)),
	}
	page, err := client.Search(context.Background(), domain.SearchQuery{Window: window, PageSize: 50})
	require.NoError(t, err)

	require.Len(t, getter.urls, 1)
	u, err := url.Parse(getter.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "api.example.test", u.Host)
	assert.Equal(t, "/api/v1.0/documents/search", u.Path)
	assert.Equal(t, "50", u.Query().Get("pageSize"))
	assert.Equal(t, "2024-05-01T00:00:00Z", u.Query().Get("issueDateFrom"))
	assert.Equal(t, "2024-05-02T00:00:00Z", u.Query().Get("issueDateTo"))
	assert.False(t, u.Query().Has("continuationToken"))

	require.Len(t, page.Documents, 1)
	doc := page.Documents[0]
	assert.Equal(t, "U1", doc.UUID)
	assert.Equal(t, "S1", doc.SubmissionID)
	assert.Equal(t, "1.0", doc.TypeVersion)
	assert.Equal(t, "Issuer Co", doc.Issuer.Name)
	assert.Equal(t, "200", doc.Receiver.ID)
	assert.Equal(t, 114.0, doc.Total)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), doc.IssuedAt)
	assert.Equal(t, "T2", page.NextPage)
	assert.True(t, page.HasNext())
}

func TestClient_BaseURLJoin(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		prefix string
	}{
		{"prefix", "https://api.example.test/", "/api/v1.0"},
		{"empty prefix", "https://api.example.test/api/v1.0", ""},
		{"slash prefix", "https://api.example.test/api/v1.0/", "/"},
		{"bare prefix", "https://api.example.test", "api/v1.0/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter := &mockGetter{bodies: map[string]string{
				"/api/v1.0/documents/search":     `{"result": []}`,
				"/api/v1.0/documents/U1/details": `{"uuid": "U1"}`,
			}}
			client := NewClient(getter, domain.APISettings{BaseURL: tt.base, PathPrefix: tt.prefix})

			_, err := client.Search(context.Background(), domain.SearchQuery{PageSize: 10})
			require.NoError(t, err)
			_, err = client.FetchDetail(context.Background(), "U1")
			require.NoError(t, err)

			require.Len(t, getter.urls, 2)
			assert.Equal(t, "https://api.example.test/api/v1.0/documents/search?pageSize=10", getter.urls[0])
			assert.Equal(t, "https://api.example.test/api/v1.0/documents/U1/details", getter.urls[1])
		})
	}
}

func TestClient_SearchContinuationWithoutWindow(t *testing.T) {
	body := `{"result": [], "metadata": {"continuationToken": "EndofResultSet"}}`
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/search": body}}
	client := NewClient(getter, testSettings)

	page, err := client.Search(context.Background(), domain.SearchQuery{ContinuationToken: "T2", PageSize: 50})
	require.NoError(t, err)

	u, err := url.Parse(getter.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "T2", u.Query().Get("continuationToken"))
	assert.False(t, u.Query().Has("issueDateFrom"))
	assert.False(t, u.Query().Has("issueDateTo"))
	assert.Empty(t, page.Documents)
	assert.False(t, page.HasNext())
}

func TestClient_SearchNullResult(t *testing.T) {
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/search": `{"result": null, "metadata": {}}`}}
	client := NewClient(getter, testSettings)

	page, err := client.Search(context.Background(), domain.SearchQuery{PageSize: 10})

	require.NoError(t, err)
	assert.Empty(t, page.Documents)
	assert.False(t, page.HasNext())
}

func TestClient_SearchMalformedBody(t *testing.T) {
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/search": `<html>`}}
	client := NewClient(getter, testSettings)

	_, err := client.Search(context.Background(), domain.SearchQuery{PageSize: 10})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

const documentObject = `{
  "issuer": {"id": "100", "name": "Issuer Co", "type": "B", "address": {"country": "EG", "governate": "Cairo"}},
  "receiver": {"id": "200", "name": "", "type": "B"},
  "documentType": "I",
  "documentTypeVersion": "1.0",
  "dateTimeIssued": "2024-05-01T10:00:00Z",
  "internalId": "INV-1",
  "totalSalesAmount": 100,
  "totalDiscountAmount": 0,
  "netAmount": 100,
  "totalAmount": 114,
  "taxTotals": [{"taxType": "T1", "amount": 14}],
  "invoiceLines": [
    {"description": "Widget", "itemType": "GS1", "itemCode": "123", "internalCode": "W-1", "unitType": "EA",
     "quantity": 2, "unitValue": {"amountEGP": 50}, "salesTotal": 100, "netTotal": 100, "total": 114,
     "discount": {"rate": 0, "amount": 0},
     "taxableItems": [{"taxType": "T1", "subType": "V009", "amount": 14, "rate": 14}]}
  ]
}`

func TestClient_FetchDetailNestedObject(t *testing.T) {
	body := `{"uuid": "U1", "submissionUUID": "S1", "status": "Valid",
	  "dateTimeRecevied": "2024-05-01T10:05:00Z",
	  "validationResults": {"status": "Valid"},
	  "document": ` + documentObject + `}`
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/U1/details": body}}
	client := NewClient(getter, testSettings)

	detail, err := client.FetchDetail(context.Background(), "U1")
	require.NoError(t, err)

	assert.True(t, detail.HasDocument)
	assert.Equal(t, "Valid", detail.ValidationStatus)
	require.NotNil(t, detail.ReceivedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), *detail.ReceivedAt)
	require.NotNil(t, detail.Issuer)
	assert.JSONEq(t, `{"country": "EG", "governate": "Cairo"}`, string(detail.Issuer.Address))
	require.NotNil(t, detail.Receiver)
	assert.Empty(t, detail.Receiver.Name)
	assert.Nil(t, detail.Receiver.Address)
	require.NotNil(t, detail.TotalAmount)
	assert.Equal(t, 114.0, *detail.TotalAmount)
	assert.Equal(t, []domain.TaxTotal{{TaxType: "T1", Amount: 14}}, detail.TaxTotals)

	require.Len(t, detail.Lines, 1)
	line := detail.Lines[0]
	assert.Equal(t, "Widget", line.Description)
	assert.Equal(t, "W-1", line.InternalCode)
	assert.Equal(t, 50.0, line.UnitPrice)
	assert.Equal(t, 114.0, line.TotalAmount)
	assert.Equal(t, []domain.TaxItem{{TaxType: "T1", SubType: "V009", Amount: 14, Rate: 14}}, line.Taxes)
}

func TestClient_FetchDetailEncodedDocumentFromRaw(t *testing.T) {
	body := fmt.Sprintf(`{"uuid": "U1", "status": "Valid", "document": %q}`, documentObject)
	settings := testSettings
	settings.DetailSource = domain.DetailSourceRaw
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/U1/raw": body}}
	client := NewClient(getter, settings)

	detail, err := client.FetchDetail(context.Background(), "U1")
	require.NoError(t, err)

	assert.True(t, detail.HasDocument)
	assert.Equal(t, "INV-1", detail.InternalID)
	assert.Len(t, detail.Lines, 1)
	assert.Contains(t, getter.urls[0], "/documents/U1/raw")
}

func TestClient_FetchDetailMissingDocument(t *testing.T) {
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/U1/details": `{"status": "Invalid"}`}}
	client := NewClient(getter, testSettings)

	detail, err := client.FetchDetail(context.Background(), "U1")
	require.NoError(t, err)

	assert.False(t, detail.HasDocument)
	assert.Equal(t, "U1", detail.UUID)
	assert.Equal(t, "Invalid", detail.Status)
	assert.Nil(t, detail.ReceivedAt)
	assert.Nil(t, detail.TotalAmount)
	assert.Empty(t, detail.Lines)
}

func TestClient_FetchDetailUndecodableDocument(t *testing.T) {
	getter := &mockGetter{bodies: map[string]string{"/api/v1.0/documents/U1/details": `{"document": "{not json"}`}}
	client := NewClient(getter, testSettings)

	_, err := client.FetchDetail(context.Background(), "U1")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_FetchDetailEmptyUUID(t *testing.T) {
	client := NewClient(&mockGetter{}, testSettings)

	_, err := client.FetchDetail(context.Background(), "")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// staticCredentials always returns the same bearer token.
type staticCredentials struct{}

func (staticCredentials) GetValidCredential(_ context.Context) (domain.Credential, error) {
	return domain.Credential{Token: "static", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (staticCredentials) Invalidate() {}

func TestClient_FetchDetailNotFoundThroughTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	tr := transport.New(server.Client(), staticCredentials{}, transport.NewLimiter(100, time.Second), transport.Options{})
	client := NewClient(tr, domain.APISettings{BaseURL: server.URL, PathPrefix: "/api/v1.0"})

	_, err := client.FetchDetail(context.Background(), "missing")

	assert.True(t, domain.IsNotFound(err))
	assert.Contains(t, err.Error(), "missing")
}
