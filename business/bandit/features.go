package bandit

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"adDecisioning/domain"
)

// Context is the bandit view of one request: the normalized feature vector
// and the coarse bucket that arm statistics are keyed by.
type Context struct {
	Vector []float64 `json:"vector"`
	Bucket string    `json:"bucket"`
}

// Layout of the fixed block; the remaining coordinates hold interests or
// the precomputed embedding.
const (
	idxBias       = 0
	idxAgeGroup   = 1 // 6 one-hot slots
	idxAge        = 7
	idxGender     = 8 // 3 one-hot slots
	idxIncome     = 11
	idxLocation   = 12
	idxSessions   = 13
	idxAvgSession = 14
	idxCTR        = 15
	idxPurchases  = 16
	idxRecency    = 17
	idxHourSin    = 18
	idxHourCos    = 19
	idxDowSin     = 20
	idxDowCos     = 21
	idxWeekend    = 22
	idxDevice     = 23 // 4 one-hot slots
	idxSessionLen = 27
	idxCtxLoc     = 28
	fixedFeatures = 29
)

var devices = map[string]int{"mobile": 0, "desktop": 1, "tablet": 2}

// hashToUnit deterministically hashes a string into [0, 1].
func hashToUnit(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()) / float64(^uint32(0))
}

func hashToSlot(s string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(n))
}

// logScale maps a count onto [0, 1] with diminishing returns up to ceil.
func logScale(v, ceil float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Min(1, math.Log1p(v)/math.Log1p(ceil))
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// BuildContext turns typed features into an L2-normalized vector of the
// given dimension. Missing features leave their coordinates at zero.
func BuildContext(u domain.UserFeatures, c domain.ContextFeatures, now time.Time, cfg Config) Context {
	dim := cfg.Dimension
	if dim < fixedFeatures+1 {
		dim = fixedFeatures + 1
	}
	x := make([]float64, dim)

	x[idxBias] = 1.0

	d := u.Demographic
	if g := d.ResolvedAgeGroup(); g != "" {
		for i, name := range domain.AgeGroups {
			if name == g {
				x[idxAgeGroup+i] = 1
				break
			}
		}
	}
	if d.Age != nil {
		x[idxAge] = clampUnit(float64(*d.Age) / 100)
	}
	switch strings.ToLower(d.Gender) {
	case "":
	case "male", "m":
		x[idxGender] = 1
	case "female", "f":
		x[idxGender+1] = 1
	default:
		x[idxGender+2] = 1
	}
	if d.IncomeBracket != nil {
		x[idxIncome] = clampUnit(float64(*d.IncomeBracket) / 4)
	}
	x[idxLocation] = hashToUnit("loc:" + strings.ToLower(d.Location))

	b := u.Behavioral
	x[idxSessions] = logScale(float64(b.SessionsLast30d), 100)
	x[idxAvgSession] = clampUnit(b.AvgSessionSeconds / 1800)
	x[idxCTR] = clampUnit(b.ClickThroughRate)
	x[idxPurchases] = logScale(float64(b.PurchasesLast90d), 50)
	if b.DaysSinceLastVisit != nil {
		x[idxRecency] = 1 / (1 + float64(*b.DaysSinceLastVisit))
	}

	if cfg.Features.UseTemporal {
		hour := c.ResolveHour(now)
		dow := c.ResolveWeekday(now)
		x[idxHourSin] = math.Sin(2 * math.Pi * float64(hour) / 24)
		x[idxHourCos] = math.Cos(2 * math.Pi * float64(hour) / 24)
		x[idxDowSin] = math.Sin(2 * math.Pi * float64(dow) / 7)
		x[idxDowCos] = math.Cos(2 * math.Pi * float64(dow) / 7)
		if dow == int(time.Saturday) || dow == int(time.Sunday) {
			x[idxWeekend] = 1
		}
	}

	if cfg.Features.UseDevice && c.DeviceType != "" {
		slot, ok := devices[strings.ToLower(c.DeviceType)]
		if !ok {
			slot = 3
		}
		x[idxDevice+slot] = 1
	}
	x[idxSessionLen] = clampUnit(c.SessionLength / 1800)
	if c.Location != "" {
		x[idxCtxLoc] = hashToUnit("loc:" + strings.ToLower(c.Location))
	}

	tail := x[fixedFeatures:]
	if cfg.Features.UseEmbedding && len(u.Embedding) > 0 {
		for i := range tail {
			if i < len(u.Embedding) && !math.IsNaN(u.Embedding[i]) && !math.IsInf(u.Embedding[i], 0) {
				tail[i] = u.Embedding[i]
			}
		}
	} else {
		for _, interest := range u.Interests {
			tail[hashToSlot("interest:"+strings.ToLower(interest), len(tail))] += 1
		}
	}

	normalize(x)
	return Context{Vector: x, Bucket: bucketFor(x)}
}

func normalize(x []float64) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range x {
		x[i] /= n
	}
}

// bucketFor rounds the leading coordinates to one decimal and hashes them.
// Nearby contexts share a bucket and therefore share arm statistics.
func bucketFor(x []float64) string {
	h := fnv.New64a()
	var buf [8]byte
	n := bucketCoordinates
	if n > len(x) {
		n = len(x)
	}
	for i := 0; i < n; i++ {
		r := math.Round(x[i]*10) / 10
		if r == 0 {
			r = 0 // fold -0 into 0
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r))
		_, _ = h.Write(buf[:])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
