package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Event is a durable record emitted by the decisioning core and persisted
// asynchronously.
type Event interface {
	EventKind() string
	EventKey() string
}

const (
	EventKindAuction      = "auction"
	EventKindBanditUpdate = "bandit_update"
	EventKindCausal       = "causal"
)

// AuctionEvent is written once per winner: the impression served and the
// spend it incurred.
type AuctionEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"column:event_id;uniqueIndex;not null" json:"event_id"`
	AuctionID     string    `gorm:"column:auction_id;index;not null" json:"auction_id"`
	UserID        string    `gorm:"column:user_id;not null" json:"user_id"`
	CampaignID    string    `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	CreativeID    string    `gorm:"column:creative_id" json:"creative_id"`
	Position      int       `gorm:"column:position" json:"position"`
	BidAmount     float64   `gorm:"column:bid_amount;type:numeric" json:"bid_amount"`
	EffectiveBid  float64   `gorm:"column:effective_bid;type:numeric" json:"effective_bid"`
	ClearingPrice float64   `gorm:"column:clearing_price;type:numeric" json:"clearing_price"`
	QualityScore  float64   `gorm:"column:quality_score;type:numeric" json:"quality_score"`
	PredictedCTR  float64   `gorm:"column:predicted_ctr;type:numeric" json:"predicted_ctr"`
	PredictedCVR  float64   `gorm:"column:predicted_cvr;type:numeric" json:"predicted_cvr"`
	Explored      bool      `gorm:"column:explored" json:"explored"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (AuctionEvent) TableName() string  { return "auction_events" }
func (AuctionEvent) EventKind() string  { return EventKindAuction }
func (e AuctionEvent) EventKey() string { return e.EventID }

type BanditUpdateEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"column:event_id;uniqueIndex;not null" json:"event_id"`
	Bucket    string    `gorm:"column:bucket;index;not null" json:"bucket"`
	ArmID     string    `gorm:"column:arm_id;not null" json:"arm_id"`
	Reward    float64   `gorm:"column:reward;type:numeric" json:"reward"`
	Applied   bool      `gorm:"column:applied" json:"applied"`
	Reason    string    `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (BanditUpdateEvent) TableName() string  { return "bandit_update_events" }
func (BanditUpdateEvent) EventKind() string  { return EventKindBanditUpdate }
func (e BanditUpdateEvent) EventKey() string { return e.EventID }

const (
	CausalImpression = "impression"
	CausalConversion = "conversion"
)

// CausalEvent feeds the offline estimators: every treatment impression,
// ghost impression and attributed conversion.
type CausalEvent struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	EventID      string          `gorm:"column:event_id;uniqueIndex;not null" json:"event_id"`
	ExperimentID string          `gorm:"column:experiment_id;index" json:"experiment_id"`
	CampaignID   string          `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	UserID       string          `gorm:"column:user_id;not null" json:"user_id"`
	Group        ExperimentGroup `gorm:"column:group_name;not null" json:"group"`
	Kind         string          `gorm:"column:kind;not null" json:"kind"`
	Ghost        bool            `gorm:"column:ghost" json:"ghost"`
	Value        float64         `gorm:"column:value;type:numeric" json:"value"`
	CreatedAt    time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (CausalEvent) TableName() string  { return "causal_events" }
func (CausalEvent) EventKind() string  { return EventKindCausal }
func (e CausalEvent) EventKey() string { return e.EventID }

// DeadLetter holds an event that could not be persisted after retries.
type DeadLetter struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventID   string         `gorm:"column:event_id;index" json:"event_id"`
	Kind      string         `gorm:"column:kind;not null" json:"kind"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Error     string         `gorm:"column:error" json:"error"`
	Attempts  int            `gorm:"column:attempts" json:"attempts"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
