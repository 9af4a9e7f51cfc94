package main

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/facility-registry/internal/ingest"
	"github.com/sells-group/facility-registry/internal/model"
)

var (
	uploadCSVPath  string
	uploadUploader string
	uploadName     string
	uploadUserType string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Enqueue a contributor CSV for ingestion",
	Long:  "Reads a CSV with name, address and country columns (plus optional lat/lng) and enqueues each row. Run ingest to resolve them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(uploadCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		rows, err := parseUploadCSV(f)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Enqueue(ctx, ingest.Upload{
			UploaderID:   uploadUploader,
			UploaderName: uploadName,
			UserType:     uploadUserType,
			File:         model.UploadFile{Name: filepath.Base(uploadCSVPath)},
			Rows:         rows,
		})
		if err != nil {
			return eris.Wrap(err, "enqueue upload")
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

var requiredColumns = []string{"name", "address", "country"}

// parseUploadCSV reads a header row and returns one RawRow per record.
// Unrecognised columns are kept in Extra under their lower-cased header.
func parseUploadCSV(r io.Reader) ([]model.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("upload: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "upload: read csv header")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}
	for _, col := range requiredColumns {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Wrap(model.MissingField(col), "upload: csv header")
		}
	}

	var rows []model.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "upload: read csv row")
		}
		row := model.RawRow{}
		for i, value := range record {
			if i >= len(header) {
				break
			}
			value = strings.TrimSpace(value)
			switch header[i] {
			case "name":
				row.Name = value
			case "address":
				row.Address = value
			case "country":
				row.Country = value
			default:
				if value == "" {
					continue
				}
				if row.Extra == nil {
					row.Extra = make(map[string]string)
				}
				row.Extra[header[i]] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadCSVPath, "csv", "", "path to CSV file (required)")
	uploadCmd.Flags().StringVar(&uploadUploader, "uploader", "", "uploader id (required)")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "uploader display name (required)")
	uploadCmd.Flags().StringVar(&uploadUserType, "user-type", model.UserTypeContributor, "contributor or seed")
	_ = uploadCmd.MarkFlagRequired("csv")
	_ = uploadCmd.MarkFlagRequired("uploader")
	_ = uploadCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(uploadCmd)
}
