package orchestrator

// RunConfiguration is what the game page tells us about the current run.
type RunConfiguration interface {
	IsPlaygroundTest() bool
	IsTestApplication() bool
	IsItemToPlay() bool
	IsAutomaticTesting() bool
}

// Strategy is the acquisition path chosen for a load.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyPlayground
	StrategyTestApplication
)

func (s Strategy) String() string {
	switch s {
	case StrategyPlayground:
		return "playground"
	case StrategyTestApplication:
		return "test_application"
	default:
		return "none"
	}
}

// SelectStrategy picks exactly one acquisition path.
//
// The predicates are considered in the order playground-test,
// test-application, item-to-play and the last one that holds wins, so
// item-to-play outranks test-application which outranks playground-test.
// Playground-test and item-to-play share the playground path.
func SelectStrategy(run RunConfiguration) Strategy {
	switch {
	case run == nil:
		return StrategyNone
	case run.IsItemToPlay():
		return StrategyPlayground
	case run.IsTestApplication():
		return StrategyTestApplication
	case run.IsPlaygroundTest():
		return StrategyPlayground
	default:
		return StrategyNone
	}
}
