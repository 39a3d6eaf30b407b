package events

// Topic layout:
//
//	sqlworker/events/<kind>    one event per observed statement
//	sqlworker/system/status    online/offline status, retained

const topicPrefix = "sqlworker"

// StatementTopic returns the event topic for a statement kind
// ("select", "insert", "update", "delete").
func StatementTopic(kind string) string {
	return topicPrefix + "/events/" + kind
}

// StatusTopic returns the retained connection status topic.
func StatusTopic() string {
	return topicPrefix + "/system/status"
}
