package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for session
// ids and as the random part of API keys.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeNode builds a snowflake node for sequential id generation
// (audit event ids). The node id comes from SNOWFLAKE_NODE, defaulting to 1
// so ids are still produced on single-instance deployments.
func NewSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
