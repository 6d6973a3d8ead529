package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variable names for collaborator credentials
const (
	EnvDatabaseURL        = "DATABASE_URL"
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvSearchAPIKey       = "GOOGLE_SEARCH_API_KEY"
	EnvSearchEngineID     = "GOOGLE_SEARCH_CX"
	EnvVideoAPIURL        = "VIDEO_API_URL"
	EnvVideoAPIKey        = "VIDEO_API_KEY"
	EnvVideoModel         = "VIDEO_MODEL"
	EnvImageAPIURL        = "IMAGE_API_URL"
	EnvImageAPIKey        = "IMAGE_API_KEY"
	EnvImageModel         = "IMAGE_MODEL"
	EnvLinkedInToken      = "LINKEDIN_ACCESS_TOKEN"
	EnvLinkedInAuthorURN  = "LINKEDIN_AUTHOR_URN"
	EnvMetaPageToken      = "META_PAGE_ACCESS_TOKEN"
	EnvMetaPageID         = "META_PAGE_ID"
	EnvInstagramAccountID = "INSTAGRAM_ACCOUNT_ID"
	EnvS3Bucket           = "S3_BUCKET"
	EnvAWSRegion          = "AWS_REGION"
)

// MissingSettingError reports a required credential or setting that is absent.
// It is a configuration error: retrying cannot fix it.
type MissingSettingError struct {
	Component string
	Settings  []string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("config error: %s requires %s but it is not set", e.Component, strings.Join(e.Settings, ", "))
}

// Setting pairs a setting name with its resolved value
type Setting struct {
	Name  string
	Value string
}

// Require returns a MissingSettingError naming every empty setting
func Require(component string, settings ...Setting) error {
	var missing []string
	for _, s := range settings {
		if strings.TrimSpace(s.Value) == "" {
			missing = append(missing, s.Name)
		}
	}
	if len(missing) > 0 {
		return &MissingSettingError{Component: component, Settings: missing}
	}
	return nil
}

// Credentials holds collaborator credentials read from the environment
type Credentials struct {
	DatabaseURL        string
	GeminiAPIKey       string
	SearchAPIKey       string
	SearchEngineID     string
	VideoAPIURL        string
	VideoAPIKey        string
	VideoModel         string
	ImageAPIURL        string
	ImageAPIKey        string
	ImageModel         string
	LinkedInToken      string
	LinkedInAuthorURN  string
	MetaPageToken      string
	MetaPageID         string
	InstagramAccountID string
	S3Bucket           string
	AWSRegion          string
}

// CredentialsFromEnv reads credentials from environment variables
func CredentialsFromEnv() Credentials {
	return Credentials{
		DatabaseURL:        os.Getenv(EnvDatabaseURL),
		GeminiAPIKey:       os.Getenv(EnvGeminiAPIKey),
		SearchAPIKey:       os.Getenv(EnvSearchAPIKey),
		SearchEngineID:     os.Getenv(EnvSearchEngineID),
		VideoAPIURL:        os.Getenv(EnvVideoAPIURL),
		VideoAPIKey:        os.Getenv(EnvVideoAPIKey),
		VideoModel:         os.Getenv(EnvVideoModel),
		ImageAPIURL:        os.Getenv(EnvImageAPIURL),
		ImageAPIKey:        os.Getenv(EnvImageAPIKey),
		ImageModel:         os.Getenv(EnvImageModel),
		LinkedInToken:      os.Getenv(EnvLinkedInToken),
		LinkedInAuthorURN:  os.Getenv(EnvLinkedInAuthorURN),
		MetaPageToken:      os.Getenv(EnvMetaPageToken),
		MetaPageID:         os.Getenv(EnvMetaPageID),
		InstagramAccountID: os.Getenv(EnvInstagramAccountID),
		S3Bucket:           os.Getenv(EnvS3Bucket),
		AWSRegion:          os.Getenv(EnvAWSRegion),
	}
}

// ApplyFile fills credentials the environment left empty from the config file
func (c *Credentials) ApplyFile(cfg *Config) {
	if cfg == nil {
		return
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = cfg.APIKey
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = cfg.DatabaseURL
	}
	if c.S3Bucket == "" {
		c.S3Bucket = cfg.S3Bucket
	}
	if c.AWSRegion == "" {
		c.AWSRegion = cfg.S3Region
	}
}
