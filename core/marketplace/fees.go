package marketplace

// Fee rates in basis points.
const (
	PlatformFeeBP = 500

	aiLowBP    = 500
	aiMediumBP = 1000
	aiHighBP   = 1500
)

// FeeBreakdown is the split of a task price on release.
type FeeBreakdown struct {
	Price             Money `json:"price"`
	PlatformFee       Money `json:"platform_fee"`
	AIContributionFee Money `json:"ai_contribution_fee"`
	NetPayment        Money `json:"net_payment"`
}

// AIRate returns the AI contribution rate in basis points. Unknown levels pay nothing.
func AIRate(level AIAssistanceLevel) int64 {
	switch level {
	case AILow:
		return aiLowBP
	case AIMedium:
		return aiMediumBP
	case AIHigh:
		return aiHighBP
	}
	return 0
}

// ComputeFees splits price into platform fee, AI fee and the assignee's net payment.
func ComputeFees(price Money, level AIAssistanceLevel) FeeBreakdown {
	platform := percentOf(price, PlatformFeeBP)
	ai := percentOf(price, AIRate(level))
	return FeeBreakdown{
		Price:             price,
		PlatformFee:       platform,
		AIContributionFee: ai,
		NetPayment:        price - platform - ai,
	}
}
