package events

// Topic constants for domain events emitted by the back office.
const (
	TopicSaleCreated       = "sale.created"
	TopicSaleStatusChanged = "sale.status_changed"
	TopicPromotionUpdated  = "promotion.updated"
)

// DefaultTopics returns the canonical list of topics that support webhooks.
func DefaultTopics() []string {
	return []string{
		TopicSaleCreated,
		TopicSaleStatusChanged,
		TopicPromotionUpdated,
	}
}

// ValidTopic reports whether a topic is one the platform emits.
func ValidTopic(topic string) bool {
	switch topic {
	case TopicSaleCreated, TopicSaleStatusChanged, TopicPromotionUpdated:
		return true
	}
	return false
}
