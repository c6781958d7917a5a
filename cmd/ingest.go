package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadgrid/lead-engine/internal/model"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Run a contact batch (CSV or JSON) through the full pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readBatch(args[0])
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(cmd.Context(), ingestSource, records)
		if err != nil {
			return err
		}

		fmt.Println(result.Report)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "csv_upload", "source label recorded on the run")
	rootCmd.AddCommand(ingestCmd)
}

// readBatch loads raw contact records from a CSV (with header row) or a
// JSON array, chosen by file extension.
func readBatch(path string) ([]model.RawContactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open batch file")
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return readCSV(f)
	}

	var records []model.RawContactRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, eris.Wrap(err, "decode batch json")
	}
	for i := range records {
		if records[i].Row == 0 {
			records[i].Row = i + 1
		}
	}
	return records, nil
}

// readCSV maps header names to record fields. Unknown columns are ignored;
// the row number is the 1-based data row position.
func readCSV(r io.Reader) ([]model.RawContactRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []model.RawContactRecord
	for rowNum := 1; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read csv row %d", rowNum)
		}

		rec := model.RawContactRecord{
			Row:           rowNum,
			Email:         get(row, "email"),
			Phone:         get(row, "phone"),
			FirstName:     get(row, "first_name"),
			LastName:      get(row, "last_name"),
			Title:         get(row, "title"),
			Seniority:     get(row, "seniority"),
			CompanyName:   get(row, "company_name"),
			CompanyDomain: get(row, "company_domain"),
			Industry:      get(row, "industry"),
			SizeBracket:   get(row, "size_bracket"),
			City:          get(row, "city"),
			State:         get(row, "state"),
			PostalCode:    get(row, "postal_code"),
			LinkedInURL:   get(row, "linkedin_url"),
			PartnerID:     get(row, "partner_id"),
			WorkspaceID:   get(row, "workspace_id"),
		}
		if ec := get(row, "employee_count"); ec != "" {
			if n, convErr := strconv.Atoi(ec); convErr == nil {
				rec.EmployeeCount = n
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
