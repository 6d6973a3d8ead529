package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Defaults applied to campaign requests that omit strategy fields
const (
	DefaultBrandName      = "Your Brand"
	DefaultCampaignGoal   = "brand awareness"
	DefaultTargetAudience = "general consumers"
	DefaultBrandPersona   = "friendly and professional"
)

// CampaignRequest is the input that starts a run
type CampaignRequest struct {
	OwnerID        string     `json:"owner_id,omitempty" validate:"omitempty,uuid"`
	ProductName    string     `json:"product_name" validate:"required,min=1,max=200"`
	Description    string     `json:"description,omitempty" validate:"max=5000"`
	ImageRef       string     `json:"image_ref,omitempty"`
	BrandName      string     `json:"brand_name,omitempty" validate:"max=200"`
	Price          string     `json:"price,omitempty"`
	CampaignGoal   string     `json:"campaign_goal,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	BrandPersona   string     `json:"brand_persona,omitempty"`
	Platforms      []Platform `json:"platforms,omitempty" validate:"dive,oneof=linkedin meta instagram"`
}

// Validate validates the CampaignRequest using the validator.
func (r *CampaignRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ApplyDefaults fills strategy fields the request left empty
func (r *CampaignRequest) ApplyDefaults() {
	if r.BrandName == "" {
		r.BrandName = DefaultBrandName
	}
	if r.CampaignGoal == "" {
		r.CampaignGoal = DefaultCampaignGoal
	}
	if r.TargetAudience == "" {
		r.TargetAudience = DefaultTargetAudience
	}
	if r.BrandPersona == "" {
		r.BrandPersona = DefaultBrandPersona
	}
	if len(r.Platforms) == 0 {
		r.Platforms = append([]Platform(nil), DefaultPlatforms...)
	}
}

// NewRun builds a run in the created state from a validated request
func (r *CampaignRequest) NewRun() *Run {
	owner, _ := uuid.Parse(r.OwnerID)
	return &Run{
		ID:             uuid.New(),
		OwnerID:        owner,
		ProductName:    r.ProductName,
		Description:    r.Description,
		ImageRef:       r.ImageRef,
		BrandName:      r.BrandName,
		Price:          r.Price,
		CampaignGoal:   r.CampaignGoal,
		TargetAudience: r.TargetAudience,
		BrandPersona:   r.BrandPersona,
		Platforms:      r.Platforms,
		Status:         RunStatusCreated,
	}
}

// FeedbackRequest carries out-of-band performance metrics for an asset
type FeedbackRequest struct {
	Metrics     map[string]any `json:"metrics" validate:"required_without=Qualitative"`
	Qualitative string         `json:"qualitative,omitempty" validate:"max=5000"`
}

// Validate validates the FeedbackRequest using the validator.
func (r *FeedbackRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Updates returns the metric map to merge, with qualitative feedback under its reserved key
func (r *FeedbackRequest) Updates() map[string]any {
	updates := make(map[string]any, len(r.Metrics)+1)
	for k, v := range r.Metrics {
		updates[k] = v
	}
	if r.Qualitative != "" {
		updates[QualitativeMetricsKey] = r.Qualitative
	}
	return updates
}
