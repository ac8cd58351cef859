package kafka

import (
	"encoding/json"
	"fmt"
	"sort"

	kafkago "github.com/segmentio/kafka-go"
)

func toHeaders(values map[string]string) []kafkago.Header {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(values[k])})
	}
	return headers
}

// HeaderValue returns the first header named key, or "".
func HeaderValue(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Decode unmarshals a message value into T.
func Decode[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decode message: %w", err)
	}
	return out, nil
}
