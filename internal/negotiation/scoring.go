package negotiation

import (
	"math"
	"sort"
)

// Criterion weights of the weighted total.
const (
	WeightPrice    = 0.35
	WeightQuality  = 0.30
	WeightLeadTime = 0.25
	WeightPayment  = 0.10
)

const (
	// NoQuoteLeadTimeDays is the lead time assumed for a supplier without a quote.
	NoQuoteLeadTimeDays = 60
	// DefaultPaymentScore applies when the catalog has no payment rating.
	DefaultPaymentScore = 6

	bestScore  = 10.0
	worstScore = 4.0
	flatScore  = 8.0
)

// Score is one supplier's per-criterion breakdown, each on a 0-10 scale.
type Score struct {
	Price    float64 `json:"priceScore"`
	Quality  float64 `json:"qualityScore"`
	LeadTime float64 `json:"leadTimeScore"`
	Payment  float64 `json:"paymentScore"`
	Total    float64 `json:"total"`
}

// ScoreSuppliers scores every negotiation against the others. Price is
// normalized over the quoted totals only; a supplier without a final quote
// takes the worst price score and the NoQuoteLeadTimeDays lead time.
func ScoreSuppliers(negotiations map[string]*SupplierNegotiation) map[string]Score {
	var totals, leads []float64
	for _, n := range negotiations {
		lead := float64(NoQuoteLeadTimeDays)
		if n.FinalQuote != nil {
			totals = append(totals, n.FinalQuote.TotalValue.InexactFloat64())
			lead = float64(n.FinalQuote.LeadTimeDays)
		}
		leads = append(leads, lead)
	}
	minTotal, maxTotal := bounds(totals)
	minLead, maxLead := bounds(leads)

	scores := make(map[string]Score, len(negotiations))
	for id, n := range negotiations {
		price := worstScore
		lead := float64(NoQuoteLeadTimeDays)
		if n.FinalQuote != nil {
			price = normalize(n.FinalQuote.TotalValue.InexactFloat64(), minTotal, maxTotal)
			lead = float64(n.FinalQuote.LeadTimeDays)
		} else if len(totals) == 0 {
			price = flatScore
		}
		payment := n.Profile.PaymentScore
		if payment <= 0 {
			payment = DefaultPaymentScore
		}
		s := Score{
			Price:    round1(price),
			Quality:  round1(n.Profile.Quality * 2),
			LeadTime: round1(normalize(lead, minLead, maxLead)),
			Payment:  round1(payment),
		}
		s.Total = round1(s.Price*WeightPrice + s.Quality*WeightQuality + s.LeadTime*WeightLeadTime + s.Payment*WeightPayment)
		scores[id] = s
	}
	return scores
}

// Winner returns the supplier with the highest total. Ties go to a supplier
// with a final quote over one without, then to the lowest id, so the result
// does not depend on map order.
func Winner(scores map[string]Score, negotiations map[string]*SupplierNegotiation) string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	quoted := func(id string) bool {
		n, ok := negotiations[id]
		return ok && n.FinalQuote != nil
	}
	best := ""
	for _, id := range ids {
		if best == "" {
			best = id
			continue
		}
		switch {
		case scores[id].Total > scores[best].Total:
			best = id
		case scores[id].Total == scores[best].Total && quoted(id) && !quoted(best):
			best = id
		}
	}
	return best
}

// normalize maps min to 10 and max to 4 linearly; a flat range scores 8.
func normalize(value, lo, hi float64) float64 {
	if hi == lo {
		return flatScore
	}
	return bestScore - (value-lo)/(hi-lo)*(bestScore-worstScore)
}

func bounds(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
