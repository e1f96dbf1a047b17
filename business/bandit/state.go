package bandit

import (
	"slices"
	"time"
)

// ArmState holds the ridge-regression statistics of one arm in one bucket.
// A and AInv are symmetric d×d matrices stored row-major; only the upper
// triangle is authoritative.
type ArmState struct {
	ArmID            string    `json:"arm_id"`
	Dim              int       `json:"dim"`
	A                []float64 `json:"A"`
	AInv             []float64 `json:"A_inv"`
	B                []float64 `json:"b"`
	Theta            []float64 `json:"theta"`
	Plays            int64     `json:"plays"`
	CumulativeReward float64   `json:"cumulative_reward"`
	SinceRefactor    int       `json:"since_refactor"`
	LastUpdated      time.Time `json:"last_updated"`
}

// BucketState tracks interactions per bucket and its arms, most recently
// updated last.
type BucketState struct {
	Bucket       string    `json:"bucket"`
	Interactions int64     `json:"interactions"`
	Arms         []string  `json:"arms"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Snapshot is a point-in-time copy of one bucket and its arms.
type Snapshot struct {
	Bucket  BucketState `json:"bucket"`
	Arms    []*ArmState `json:"arms"`
	TakenAt time.Time   `json:"taken_at"`
}

// newArmState starts from the ridge prior A = I, b = 0.
func newArmState(armID string, dim int, now time.Time) *ArmState {
	a := identity(dim)
	return &ArmState{
		ArmID:       armID,
		Dim:         dim,
		A:           a,
		AInv:        identity(dim),
		B:           make([]float64, dim),
		Theta:       make([]float64, dim),
		LastUpdated: now,
	}
}

func identity(dim int) []float64 {
	m := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		m[i*dim+i] = 1
	}
	return m
}

func (a *ArmState) clone() *ArmState {
	c := *a
	c.A = slices.Clone(a.A)
	c.AInv = slices.Clone(a.AInv)
	c.B = slices.Clone(a.B)
	c.Theta = slices.Clone(a.Theta)
	return &c
}

func (a *ArmState) meanReward() float64 {
	if a.Plays == 0 {
		return 0
	}
	return a.CumulativeReward / float64(a.Plays)
}

func (b BucketState) clone() BucketState {
	c := b
	c.Arms = slices.Clone(b.Arms)
	return c
}

// touch moves armID to the most-recent end of the arm list.
func (b *BucketState) touch(armID string) {
	if i := slices.Index(b.Arms, armID); i >= 0 {
		b.Arms = slices.Delete(b.Arms, i, i+1)
	}
	b.Arms = append(b.Arms, armID)
}

func (b *BucketState) recentArms(n int) []string {
	if len(b.Arms) <= n {
		return b.Arms
	}
	return b.Arms[len(b.Arms)-n:]
}
