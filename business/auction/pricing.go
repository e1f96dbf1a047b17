package auction

import (
	"math"
	"sort"

	"adDecisioning/domain"
)

// rankBids orders bids by effective bid, highest first. Equal effective
// bids are ordered by campaign id so the ranking is deterministic.
func rankBids(bids []domain.Bid) []domain.Bid {
	ranked := append([]domain.Bid(nil), bids...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ei, ej := ranked[i].EffectiveBid(), ranked[j].EffectiveBid()
		if ei != ej {
			return ei > ej
		}
		return ranked[i].CampaignID < ranked[j].CampaignID
	})
	return ranked
}

// priceGSP turns the first maxWinners ranked bids into winners. The winner
// at position i pays the effective bid at position i+1, never more than
// its own effective bid, floored at the reserve; the last ranked bidder
// pays the reserve.
func priceGSP(ranked []domain.Bid, maxWinners int, reserve float64, auctionID string) []domain.Winner {
	n := len(ranked)
	if maxWinners < n {
		n = maxWinners
	}
	winners := make([]domain.Winner, 0, n)
	for i := 0; i < n; i++ {
		b := ranked[i]
		eff := b.EffectiveBid()

		price := reserve
		if i+1 < len(ranked) {
			price = math.Max(reserve, math.Min(ranked[i+1].EffectiveBid(), eff))
		}

		winners = append(winners, domain.Winner{
			AuctionID:     auctionID,
			CampaignID:    b.CampaignID,
			CreativeID:    b.CreativeID,
			Position:      i + 1,
			BidAmount:     b.Amount,
			EffectiveBid:  eff,
			ClearingPrice: price,
			QualityScore:  b.QualityScore,
			PredictedCTR:  b.PredictedCTR,
			PredictedCVR:  b.PredictedCVR,
		})
	}
	return winners
}

// promote moves ranked[idx] into the last winning slot, shifting the bids
// in between down by one.
func promote(ranked []domain.Bid, idx, maxWinners int) []domain.Bid {
	slot := maxWinners - 1
	if idx <= slot || idx >= len(ranked) {
		return ranked
	}
	out := append([]domain.Bid(nil), ranked...)
	b := out[idx]
	copy(out[slot+1:idx+1], out[slot:idx])
	out[slot] = b
	return out
}
