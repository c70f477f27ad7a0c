package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultSheetRange = "Leads!A1"

// SheetsConfig locates the audit sheet and the service account used to write it.
type SheetsConfig struct {
	SpreadsheetID string
	Range         string
	// CredentialsBase64 is the base64 encoded service-account JSON key.
	CredentialsBase64 string
}

// SheetsAppender appends rows to a Google Sheet. The API client is built on
// first use, so a bad credential only fails the appends that need it.
type SheetsAppender struct {
	config SheetsConfig

	mu      sync.Mutex
	service *sheets.Service
}

func NewSheetsAppender(cfg SheetsConfig) *SheetsAppender {
	if cfg.Range == "" {
		cfg.Range = DefaultSheetRange
	}
	return &SheetsAppender{config: cfg}
}

// NewSheetsAppenderWithService uses an already built client.
func NewSheetsAppenderWithService(cfg SheetsConfig, svc *sheets.Service) *SheetsAppender {
	a := NewSheetsAppender(cfg)
	a.service = svc
	return a
}

func (a *SheetsAppender) Name() string { return "sheets" }

func (a *SheetsAppender) Append(ctx context.Context, row Row) error {
	if a.config.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet id is not configured")
	}
	svc, err := a.client()
	if err != nil {
		return err
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{row.Values()}}
	_, err = svc.Spreadsheets.Values.Append(a.config.SpreadsheetID, a.config.Range, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

func (a *SheetsAppender) client() (*sheets.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.service != nil {
		return a.service, nil
	}

	key, err := DecodeCredentials(a.config.CredentialsBase64)
	if err != nil {
		return nil, err
	}
	jwt, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account credentials: %w", err)
	}

	// Token refreshes must outlive the request that triggered client creation.
	bg := context.Background()
	svc, err := sheets.NewService(bg, option.WithHTTPClient(jwt.Client(bg)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	a.service = svc
	return svc, nil
}

// DecodeCredentials decodes the base64 service-account key.
func DecodeCredentials(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("service account credentials are not configured")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account credentials: %w", err)
	}
	return key, nil
}
