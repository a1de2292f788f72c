package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// DefaultRange covers the product columns of the first sheet
const DefaultRange = "Sheet1!A:Q"

var ErrNoSheet = errors.New("sheet id is not configured")

// Config selects the spreadsheet and the credentials used to read it
type Config struct {
	SheetID         string
	Range           string
	CredentialsJSON string
	CredentialsFile string
	APIKey          string
}

// Source reads the product sheet as raw rows, header row first
type Source struct {
	svc     *gsheets.Service
	sheetID string
	rng     string
	logger  *zap.Logger
}

// NewSource creates a Google Sheets row source
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.SheetID == "" {
		return nil, ErrNoSheet
	}
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}

	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsReadonlyScope)}
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	return &Source{
		svc:     svc,
		sheetID: cfg.SheetID,
		rng:     cfg.Range,
		logger:  util.GetLogger(),
	}, nil
}

// SheetID returns the spreadsheet this source reads
func (s *Source) SheetID() string {
	return s.sheetID
}

// Rows fetches the configured range
func (s *Source) Rows(ctx context.Context) ([][]string, error) {
	ctx, span := util.StartSpan(ctx, "sheets.Source.Rows")
	defer span.End()

	start := time.Now()
	resp, err := s.svc.Spreadsheets.Values.Get(s.sheetID, s.rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheetID, err)
	}

	rows := toStrings(resp.Values)
	s.logger.Debug("Fetched product sheet",
		zap.String("sheet_id", s.sheetID),
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(start)))
	return rows, nil
}

// toStrings flattens the API's cell values into text
func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		row := make([]string, len(v))
		for i, cell := range v {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func cellString(cell interface{}) string {
	switch c := cell.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
