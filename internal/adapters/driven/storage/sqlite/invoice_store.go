package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/logger"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// execer is satisfied by *sql.Tx; kept narrow so upsertOne only ever runs
// inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// UpsertDocument writes one document and its lines in a single transaction.
func (s *documentStore) UpsertDocument(ctx context.Context, doc domain.Document) (domain.UpsertOutcome, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", unavailable(ctx, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	outcome, err := s.upsertOne(ctx, tx, doc)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", unavailable(ctx, "commit", err)
	}
	return outcome, nil
}

// UpsertDocuments writes a batch in one transaction with a savepoint per
// document, so a failing document rolls back only its own writes.
func (s *documentStore) UpsertDocuments(ctx context.Context, docs []domain.Document) ([]domain.UpsertResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(ctx, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	results := make([]domain.UpsertResult, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		savepoint := fmt.Sprintf("doc_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, unavailable(ctx, "savepoint", err)
		}

		outcome, upsertErr := s.upsertOne(ctx, tx, doc)
		if upsertErr != nil {
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO "+savepoint); err != nil {
				return nil, unavailable(ctx, "rollback to savepoint", err)
			}
			logger.Warn("document not persisted", "uuid", doc.UUID, "err", upsertErr)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE "+savepoint); err != nil {
			return nil, unavailable(ctx, "release savepoint", err)
		}

		results = append(results, domain.UpsertResult{UUID: doc.UUID, Outcome: outcome, Err: upsertErr})
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(ctx, "commit", err)
	}
	return results, nil
}

// upsertOne replaces the invoice row and its full line set, or does nothing
// when the stored content hash already matches.
func (s *documentStore) upsertOne(ctx context.Context, tx execer, doc domain.Document) (domain.UpsertOutcome, error) {
	if doc.UUID == "" {
		return "", fmt.Errorf("%w: %w: document without uuid", domain.ErrPersistence, domain.ErrInvalidInput)
	}

	hash, err := contentHash(doc)
	if err != nil {
		return "", fmt.Errorf("%w: hashing %s: %w", domain.ErrPersistence, doc.UUID, err)
	}

	var stored string
	err = tx.QueryRowContext(ctx, "SELECT content_hash FROM invoices WHERE uuid = ?", doc.UUID).Scan(&stored)
	existed := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existed = false
	case err != nil:
		return "", fmt.Errorf("%w: reading %s: %w", domain.ErrPersistence, doc.UUID, err)
	case stored == hash:
		return domain.UpsertUnchanged, nil
	}

	issuerAddr, receiverAddr := rawJSON(doc.Issuer.Address), rawJSON(doc.Receiver.Address)
	taxTotals, err := marshalNullable(doc.TaxTotals)
	if err != nil {
		return "", fmt.Errorf("%w: marshalling tax totals: %w", domain.ErrPersistence, err)
	}
	now := formatTime(s.store.now())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			uuid, submission_id, internal_id, type_name, type_version, status,
			issuer_id, issuer_name, issuer_type, issuer_address,
			receiver_id, receiver_name, receiver_type, receiver_address,
			issued_at, received_at, total, net_amount, total_sales, total_discount,
			tax_totals, validation_status, has_detail, content_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			submission_id = excluded.submission_id,
			internal_id = excluded.internal_id,
			type_name = excluded.type_name,
			type_version = excluded.type_version,
			status = excluded.status,
			issuer_id = excluded.issuer_id,
			issuer_name = excluded.issuer_name,
			issuer_type = excluded.issuer_type,
			issuer_address = excluded.issuer_address,
			receiver_id = excluded.receiver_id,
			receiver_name = excluded.receiver_name,
			receiver_type = excluded.receiver_type,
			receiver_address = excluded.receiver_address,
			issued_at = excluded.issued_at,
			received_at = excluded.received_at,
			total = excluded.total,
			net_amount = excluded.net_amount,
			total_sales = excluded.total_sales,
			total_discount = excluded.total_discount,
			tax_totals = excluded.tax_totals,
			validation_status = excluded.validation_status,
			has_detail = excluded.has_detail,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`, doc.UUID, nullString(doc.SubmissionID), nullString(doc.InternalID),
		nullString(doc.TypeName), nullString(doc.TypeVersion), nullString(doc.Status),
		nullString(doc.Issuer.ID), nullString(doc.Issuer.Name), nullString(doc.Issuer.Type), issuerAddr,
		nullString(doc.Receiver.ID), nullString(doc.Receiver.Name), nullString(doc.Receiver.Type), receiverAddr,
		formatTime(doc.IssuedAt), formatTime(doc.ReceivedAt), doc.Total,
		nullFloat(doc.NetAmount), nullFloat(doc.TotalSales), nullFloat(doc.TotalDiscount),
		taxTotals, nullString(doc.ValidationStatus), boolToInt(doc.HasDetail), hash, now, now)
	if err != nil {
		return "", fmt.Errorf("%w: writing invoice %s: %w", domain.ErrPersistence, doc.UUID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM invoice_lines WHERE invoice_uuid = ?", doc.UUID); err != nil {
		return "", fmt.Errorf("%w: clearing lines of %s: %w", domain.ErrPersistence, doc.UUID, err)
	}

	if len(doc.Lines) > 0 {
		if err := insertLines(ctx, tx, doc.UUID, doc.Lines); err != nil {
			return "", fmt.Errorf("%w: writing lines of %s: %w", domain.ErrPersistence, doc.UUID, err)
		}
	}

	if existed {
		return domain.UpsertUpdated, nil
	}
	return domain.UpsertCreated, nil
}

func insertLines(ctx context.Context, tx execer, uuid string, lines []domain.LineItem) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invoice_lines (
			invoice_uuid, line_no, description, item_code, item_type, internal_code, unit_type,
			quantity, unit_price, sales_total, discount_rate, discount_amount, net_total, total_amount,
			taxable_items
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, line := range lines {
		taxes, err := marshalNullable(line.Taxes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, uuid, i+1,
			nullString(line.Description), nullString(line.ItemCode), nullString(line.ItemType),
			nullString(line.InternalCode), nullString(line.UnitType),
			line.Quantity, line.UnitPrice, line.SalesTotal, line.DiscountRate, line.DiscountAmount,
			line.NetTotal, line.TotalAmount, taxes); err != nil {
			return err
		}
	}
	return nil
}

// GetDocument retrieves a document with its lines in ordinal order.
func (s *documentStore) GetDocument(ctx context.Context, uuid string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT uuid, submission_id, internal_id, type_name, type_version, status,
			issuer_id, issuer_name, issuer_type, issuer_address,
			receiver_id, receiver_name, receiver_type, receiver_address,
			issued_at, received_at, total, net_amount, total_sales, total_discount,
			tax_totals, validation_status, has_detail
		FROM invoices WHERE uuid = ?
	`, uuid)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	lines, err := s.getLines(ctx, uuid)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

func (s *documentStore) getLines(ctx context.Context, uuid string) ([]domain.LineItem, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT description, item_code, item_type, internal_code, unit_type,
			quantity, unit_price, sales_total, discount_rate, discount_amount, net_total, total_amount,
			taxable_items
		FROM invoice_lines WHERE invoice_uuid = ? ORDER BY line_no
	`, uuid)
	if err != nil {
		return nil, fmt.Errorf("querying lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.LineItem //nolint:prealloc // size unknown from query
	for rows.Next() {
		var line domain.LineItem
		var description, itemCode, itemType, internalCode, unitType, taxes sql.NullString
		if err := rows.Scan(&description, &itemCode, &itemType, &internalCode, &unitType,
			&line.Quantity, &line.UnitPrice, &line.SalesTotal, &line.DiscountRate, &line.DiscountAmount,
			&line.NetTotal, &line.TotalAmount, &taxes); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		line.Description = description.String
		line.ItemCode = itemCode.String
		line.ItemType = itemType.String
		line.InternalCode = internalCode.String
		line.UnitType = unitType.String
		if taxes.Valid && taxes.String != jsonNull {
			if err := json.Unmarshal([]byte(taxes.String), &line.Taxes); err != nil {
				return nil, fmt.Errorf("unmarshalling line taxes: %w", err)
			}
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lines: %w", err)
	}
	return lines, nil
}

// CountDocuments returns the number of stored invoices.
func (s *documentStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM invoices").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting invoices: %w", err)
	}
	return n, nil
}

// scanDocument scans a single invoice row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var submissionID, internalID, typeName, typeVersion, status sql.NullString
	var issuerID, issuerName, issuerType, issuerAddr sql.NullString
	var receiverID, receiverName, receiverType, receiverAddr sql.NullString
	var issuedAt, receivedAt, taxTotals, validationStatus sql.NullString
	var netAmount, totalSales, totalDiscount sql.NullFloat64
	var hasDetail int

	if err := row.Scan(&doc.UUID, &submissionID, &internalID, &typeName, &typeVersion, &status,
		&issuerID, &issuerName, &issuerType, &issuerAddr,
		&receiverID, &receiverName, &receiverType, &receiverAddr,
		&issuedAt, &receivedAt, &doc.Total, &netAmount, &totalSales, &totalDiscount,
		&taxTotals, &validationStatus, &hasDetail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}

	doc.SubmissionID = submissionID.String
	doc.InternalID = internalID.String
	doc.TypeName = typeName.String
	doc.TypeVersion = typeVersion.String
	doc.Status = status.String
	doc.Issuer = domain.Party{ID: issuerID.String, Name: issuerName.String, Type: issuerType.String}
	doc.Receiver = domain.Party{ID: receiverID.String, Name: receiverName.String, Type: receiverType.String}
	if issuerAddr.Valid {
		doc.Issuer.Address = json.RawMessage(issuerAddr.String)
	}
	if receiverAddr.Valid {
		doc.Receiver.Address = json.RawMessage(receiverAddr.String)
	}
	doc.IssuedAt = parseTime(issuedAt)
	doc.ReceivedAt = parseTime(receivedAt)
	doc.NetAmount = floatPtr(netAmount)
	doc.TotalSales = floatPtr(totalSales)
	doc.TotalDiscount = floatPtr(totalDiscount)
	doc.ValidationStatus = validationStatus.String
	doc.HasDetail = hasDetail == 1

	if taxTotals.Valid && taxTotals.String != jsonNull {
		if err := json.Unmarshal([]byte(taxTotals.String), &doc.TaxTotals); err != nil {
			return nil, fmt.Errorf("unmarshalling tax totals: %w", err)
		}
	}

	return &doc, nil
}

// contentHash fingerprints everything a document persists, so an identical
// re-upsert can be skipped.
func contentHash(doc domain.Document) (string, error) {
	doc.IssuedAt = doc.IssuedAt.UTC()
	doc.ReceivedAt = doc.ReceivedAt.UTC()
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// rawJSON stores a verbatim JSON value, or NULL when absent.
func rawJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == jsonNull {
		return nil
	}
	return string(raw)
}

// marshalNullable encodes v as JSON, or NULL for an empty slice.
func marshalNullable[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
