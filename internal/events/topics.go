package events

// Topic constants for the coordination event stream
const (
	// Work lifecycle topics
	TopicWorkIssued = "coord.work_issued" // coordinator → downstream indexers
	TopicSolves     = "coord.solves"      // coordinator → downstream indexers

	// Statistics and monitoring topics
	TopicCoordinatorStats = "coord.stats" // pruner → dashboards
)
