package config

// Strategy shapes the daemon's own refresh demand. It never alters
// admission math; it only decides how often and how hard the watchlist
// refresh loop asks for data.
type Strategy struct {
	Name            string
	IntervalSeconds int
	BatchSize       int
	Priority        string
}

var strategies = map[string]Strategy{
	"conservative": {Name: "conservative", IntervalSeconds: 3600, BatchSize: 10, Priority: "low"},
	"normal":       {Name: "normal", IntervalSeconds: 1800, BatchSize: 20, Priority: "normal"},
	"aggressive":   {Name: "aggressive", IntervalSeconds: 900, BatchSize: 50, Priority: "high"},
	"realtime":     {Name: "realtime", IntervalSeconds: 300, BatchSize: 100, Priority: "high"},
}

// StrategyByName looks up a named refresh preset; unknown names fall back
// to the normal preset.
func StrategyByName(name string) Strategy {
	if s, ok := strategies[name]; ok {
		return s
	}
	return strategies["normal"]
}
