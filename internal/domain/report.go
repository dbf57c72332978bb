package domain

import "time"

// MarketType names one of the markets the pipeline analyzes.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketMethod    MarketType = "method"
	MarketRound     MarketType = "round"
	MarketProp      MarketType = "prop"
)

// AllMarketTypes lists the analyzed markets in report order.
var AllMarketTypes = []MarketType{MarketMoneyline, MarketMethod, MarketRound, MarketProp}

// MarketAnalysis summarizes one market type across the current snapshot set.
type MarketAnalysis struct {
	Market        MarketType             `json:"market"`
	FightsCovered int                    `json:"fightsCovered"`
	BooksCovered  int                    `json:"booksCovered"`
	Availability  float64                `json:"availability"` // percent of fights with this market priced
	Efficiency    float64                `json:"efficiency"`   // [0,1], 1 = no exploitable edge
	Opportunities []ArbitrageOpportunity `json:"opportunities,omitempty"`
}

// MarketReport is the consolidated output of one aggregator run. A failed
// connector contributes an empty analysis rather than aborting the report.
type MarketReport struct {
	GeneratedAt      time.Time                     `json:"generatedAt"`
	TotalFights      int                           `json:"totalFights"`
	TotalSportsbooks int                           `json:"totalSportsbooks"`
	Ingestion        []IngestionResult             `json:"ingestion"`
	Markets          map[MarketType]MarketAnalysis `json:"markets"`
	CrossMarket      []ArbitrageOpportunity        `json:"crossMarket,omitempty"`
	EfficiencyScore  float64                       `json:"efficiencyScore"` // weighted average, [0,1]
	Recommendations  []string                      `json:"recommendations"`
}
