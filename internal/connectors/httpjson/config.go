package httpjson

import (
	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// Config is the parsed option set for one httpjson source. Everything
// about the provider's shape lives here; the adapter itself stays
// generic.
type Config struct {
	// RecordsPath names the top-level field holding the record array.
	// Empty means the response body is the array itself.
	RecordsPath string

	// Field mappings into the normalised record. IDField and TitleField
	// have defaults; the rest are optional.
	IDField             string
	TitleField          string
	DescriptionField    string
	AgencyField         string
	ClassificationField string
	ValueField          string
	URLField            string
	PostedField         string
	DeadlineField       string

	// RecordType is the fixed type for this provider's records.
	RecordType domain.RecordType

	// CursorParam is the query parameter carrying the page token;
	// NextCursorPath is the response field holding the next token.
	CursorParam    string
	NextCursorPath string

	// APIKey auth.
	APIKey       string
	APIKeyHeader string

	// OAuth2 client-credentials auth.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// ParseConfig reads a source's option map. Only the fields the source
// sets are validated; auth fields are checked against the source's
// declared auth mode.
func ParseConfig(cfg domain.SourceConfig) (*Config, error) {
	c := &Config{
		RecordsPath:         cfg.Options["records_path"],
		IDField:             orDefault(cfg.Options["id_field"], "id"),
		TitleField:          orDefault(cfg.Options["title_field"], "title"),
		DescriptionField:    cfg.Options["description_field"],
		AgencyField:         cfg.Options["agency_field"],
		ClassificationField: cfg.Options["classification_field"],
		ValueField:          cfg.Options["value_field"],
		URLField:            cfg.Options["url_field"],
		PostedField:         cfg.Options["posted_field"],
		DeadlineField:       cfg.Options["deadline_field"],
		RecordType:          domain.RecordType(orDefault(cfg.Options["record_type"], string(domain.RecordOpportunity))),
		CursorParam:         cfg.Options["cursor_param"],
		NextCursorPath:      cfg.Options["next_cursor_path"],
	}

	switch c.RecordType {
	case domain.RecordOpportunity, domain.RecordContract, domain.RecordOrganisation, domain.RecordDocument:
	default:
		return nil, ErrInvalidRecordType
	}

	switch cfg.AuthMode {
	case domain.AuthAPIKey:
		c.APIKey = cfg.Options["api_key"]
		c.APIKeyHeader = orDefault(cfg.Options["api_key_header"], "X-Api-Key")
		if c.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
	case domain.AuthOAuth:
		c.ClientID = cfg.Options["client_id"]
		c.ClientSecret = cfg.Options["client_secret"]
		c.TokenURL = cfg.Options["token_url"]
		if c.ClientID == "" || c.ClientSecret == "" || c.TokenURL == "" {
			return nil, ErrMissingOAuthConfig
		}
		if scope := cfg.Options["scope"]; scope != "" {
			c.Scopes = []string{scope}
		}
	}
	return c, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
