package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Inspect synced invoices",
}

var documentShowCmd = &cobra.Command{
	Use:   "show [uuid]",
	Short: "Print an invoice and its lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of synced invoices",
	Args:  cobra.NoArgs,
	RunE:  runDocumentCount,
}

func init() {
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentCountCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	doc, err := svc.Documents.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	writeDocument(cmd.OutOrStdout(), doc)
	return nil
}

func runDocumentCount(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	count, err := svc.Documents.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	cmd.Println(count)
	return nil
}

func writeDocument(w io.Writer, doc *domain.Document) {
	detail := styles.Warning.Render("summary only")
	if doc.HasDetail {
		detail = styles.Success.Render("yes")
	}

	fields := []field{
		{"Type", fmt.Sprintf("%s %s", doc.TypeName, doc.TypeVersion)},
		{"Internal ID", doc.InternalID},
		{"Submission", doc.SubmissionID},
		{"Status", doc.Status},
		{"Issuer", partyLine(doc.Issuer)},
		{"Receiver", partyLine(doc.Receiver)},
		{"Issued", formatTimestamp(doc.IssuedAt)},
		{"Received", formatTimestamp(doc.ReceivedAt)},
		{"Total", formatAmount(doc.Total)},
	}
	if doc.NetAmount != nil {
		fields = append(fields, field{"Net amount", formatAmount(*doc.NetAmount)})
	}
	for _, tax := range doc.TaxTotals {
		fields = append(fields, field{"Tax " + tax.TaxType, formatAmount(tax.Amount)})
	}
	if doc.ValidationStatus != "" {
		fields = append(fields, field{"Validation", doc.ValidationStatus})
	}
	fields = append(fields, field{"Detail", detail})
	writeFields(w, "Invoice "+doc.UUID, fields)

	if len(doc.Lines) == 0 {
		return
	}
	fmt.Fprintln(w)
	rows := make([][]string, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			line.ItemCode,
			line.Description,
			fmt.Sprintf("%g %s", line.Quantity, line.UnitType),
			formatAmount(line.UnitPrice),
			formatAmount(line.TotalAmount),
		})
	}
	writeTable(w, []string{"#", "CODE", "DESCRIPTION", "QTY", "UNIT PRICE", "TOTAL"}, rows)
}

func partyLine(p domain.Party) string {
	if p.ID == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
