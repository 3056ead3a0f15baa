package adaptive

// Decision is the transition chosen after grading.
type Decision string

const (
	// DecisionGenerate means enough relevant evidence was retained.
	DecisionGenerate Decision = "generate"
	// DecisionWebSearch appends web results and grades again.
	DecisionWebSearch Decision = "web_search"
	// DecisionRewrite reformulates the question and queries the primary source again.
	DecisionRewrite Decision = "rewrite"
	// DecisionBestEffort generates from whatever survived, possibly nothing.
	DecisionBestEffort Decision = "best_effort"
)

// Observation is the part of the turn state the retry policy looks at.
type Observation struct {
	Relevant         int
	RetryCount       int
	WebSearchTried   bool
	WebAvailable     bool
	WebRouted        bool
	RewriteAvailable bool
}

// RetryController bounds the semantic retry loop of a turn.
type RetryController struct {
	MaxRetries  int
	MinRelevant int
	// RewriteAfterWeb lets a locally routed turn rewrite its question once
	// web fallback has been tried. Web-routed turns never do.
	RewriteAfterWeb bool
}

// Decide maps an observation to the next transition. Every path other than
// web search and rewrite leads to generation, and both of those consume one
// retry, so a turn performs at most MaxRetries+1 retrieval rounds. Once web
// search has been tried the turn proceeds with best effort unless
// RewriteAfterWeb allows another local round.
func (c RetryController) Decide(obs Observation) Decision {
	minRelevant := c.MinRelevant
	if minRelevant < 1 {
		minRelevant = 1
	}
	switch {
	case obs.Relevant >= minRelevant:
		return DecisionGenerate
	case obs.RetryCount >= c.MaxRetries:
		return DecisionBestEffort
	case !obs.WebSearchTried && obs.WebAvailable:
		return DecisionWebSearch
	case obs.WebSearchTried && (!c.RewriteAfterWeb || obs.WebRouted):
		return DecisionBestEffort
	case obs.RewriteAvailable:
		return DecisionRewrite
	default:
		return DecisionBestEffort
	}
}

// WorstCaseSteps is the largest number of graph nodes a turn can enter with
// the given retry and regeneration budgets: the fixed prefix, a rewrite
// round per retry, one generate/verify/review round per generation, and the
// end node.
func WorstCaseSteps(maxRetries, maxRegenerations int) int {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRegenerations < 0 {
		maxRegenerations = 0
	}
	return 5 + 4*maxRetries + 3*(1+maxRegenerations) + 1
}
