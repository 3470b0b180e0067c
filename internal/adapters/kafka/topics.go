package kafka

// TopicResearchResponses carries every assembled research response, keyed by request ID
const TopicResearchResponses = "research.responses"
