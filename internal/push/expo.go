// Package push delivers queued notifications to the Expo push service.
package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// MaxBatch is the largest number of messages Expo accepts per request.
const MaxBatch = 100

// ValidToken reports whether token is an Expo push token.
func ValidToken(token string) bool {
	_, err := expo.NewExponentPushToken(token)
	return err == nil
}

// Sender publishes a batch and returns one response per message, in order.
// *expo.PushClient satisfies it.
type Sender interface {
	PublishMultiple(messages []expo.PushMessage) ([]expo.PushResponse, error)
}

// NewExpoClient 创建 Expo 客户端；host 为空时使用 https://exp.host
func NewExpoClient(host, accessToken string) *expo.PushClient {
	return expo.NewPushClient(&expo.ClientConfig{
		Host:        host,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	})
}

// pushData flattens the stored JSON payload into Expo's string map.
func pushData(raw []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode push data: %w", err)
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case string:
			out[k] = x
		case json.Number:
			out[k] = x.String()
		default:
			b, err := json.Marshal(x)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		}
	}
	return out, nil
}
