package domain

type AuctionRequest struct {
	UserID          string          `json:"user_id" validate:"required"`
	UserFeatures    UserFeatures    `json:"user_features"`
	ContextFeatures ContextFeatures `json:"context_features"`
}

// Bid is a candidate's computed bid. Amount already includes every
// multiplier; the effective bid used for ranking is Amount * QualityScore.
type Bid struct {
	CampaignID               string  `json:"campaign_id"`
	CreativeID               string  `json:"creative_id"`
	Amount                   float64 `json:"amount"`
	QualityScore             float64 `json:"quality_score"`
	TargetingScore           float64 `json:"targeting_score"`
	PredictedCTR             float64 `json:"predicted_ctr"`
	PredictedCVR             float64 `json:"predicted_cvr"`
	PacingMultiplier         float64 `json:"pacing_multiplier"`
	CompetitiveMultiplier    float64 `json:"competitive_multiplier"`
	IncrementalityMultiplier float64 `json:"incrementality_multiplier"`
}

func (b Bid) EffectiveBid() float64 {
	return b.Amount * b.QualityScore
}

type Winner struct {
	AuctionID     string  `json:"auction_id"`
	CampaignID    string  `json:"campaign_id"`
	CreativeID    string  `json:"creative_id"`
	Position      int     `json:"position"`
	BidAmount     float64 `json:"bid_amount"`
	EffectiveBid  float64 `json:"effective_bid"`
	ClearingPrice float64 `json:"clearing_price"`
	QualityScore  float64 `json:"quality_score"`
	PredictedCTR  float64 `json:"predicted_ctr"`
	PredictedCVR  float64 `json:"predicted_cvr"`
	Explored      bool    `json:"explored,omitempty"`
}

type FeedbackKind string

const (
	FeedbackImpression FeedbackKind = "impression"
	FeedbackClick      FeedbackKind = "click"
	FeedbackConversion FeedbackKind = "conversion"
)

type AuctionFeedback struct {
	AuctionID  string       `json:"auction_id" validate:"required"`
	CampaignID string       `json:"campaign_id" validate:"required"`
	Kind       FeedbackKind `json:"kind" validate:"required,oneof=impression click conversion"`
	Value      float64      `json:"value" validate:"gte=0"`
}

type Conversion struct {
	UserID     string  `json:"user_id" validate:"required"`
	CampaignID string  `json:"campaign_id" validate:"required"`
	Value      float64 `json:"value" validate:"gte=0"`
}
