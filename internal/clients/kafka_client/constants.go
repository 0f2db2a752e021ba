package kafka_client

import "time"

const (
	KAFKA_TOPIC_RAW_ITEMS = "stackexchange-raw" // perceval items fetched from StackExchange
)

const (
	POLL_TIMEOUT = 1 * time.Second
	MAX_RETRIES  = 5
	RETRY_DELAY  = 2 * time.Second
)
