package mqtt

import "strings"

// SystemStatusTopic is the will topic used when the caller names none.
const SystemStatusTopic = "graylogic/system/status"

// Topic joins levels under the graylogic root:
//
//	mqtt.Topic("state", "litetouch", "014_3") // graylogic/state/litetouch/014_3
//	mqtt.Topic("command", "litetouch", "+")   // graylogic/command/litetouch/+
func Topic(levels ...string) string {
	return strings.Join(append([]string{"graylogic"}, levels...), "/")
}
