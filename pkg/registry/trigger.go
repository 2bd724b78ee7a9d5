package registry

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// ErrTestEvent marks the s3:TestEvent message S3 sends when a notification is configured.
var ErrTestEvent = errors.New("s3 test event")

// Trigger identifies the stored object an ingestion runs for.
type Trigger struct {
	Bucket    string
	Key       string
	EventName string
}

type s3Notification struct {
	Event   string           `json:"Event"`
	Records *[]s3EventRecord `json:"Records"`
}

type s3EventRecord struct {
	EventName   string `json:"eventName"`
	EventSource string `json:"eventSource"`
	S3          *struct {
		Bucket *struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object *struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseTrigger decodes an S3 object notification carrying exactly one record.
// The object key is URL-decoded, with '+' read as a space. Every rejection is a
// BadRequest; an s3:TestEvent yields ErrTestEvent wrapped in a BadRequest.
func ParseTrigger(event []byte) (Trigger, error) {
	var n s3Notification
	if err := json.Unmarshal(event, &n); err != nil {
		return Trigger{}, BadRequestWrap("Bad Request. Invalid event.", err)
	}
	if n.Event == "s3:TestEvent" {
		return Trigger{}, BadRequestWrap("Bad Request. Test event.", ErrTestEvent)
	}
	if n.Records == nil {
		return Trigger{}, BadRequest("Bad Request. No event Records.")
	}
	if len(*n.Records) != 1 {
		return Trigger{}, BadRequest("Bad Request. Expected one record.")
	}

	record := (*n.Records)[0]
	if record.S3 == nil || record.S3.Object == nil || record.S3.Bucket == nil {
		return Trigger{}, BadRequest("Bad Request. Invalid s3 event.")
	}
	if record.S3.Bucket.Name == "" {
		return Trigger{}, BadRequest("Bad Request. No bucket name found for event.")
	}
	if record.S3.Object.Key == "" {
		return Trigger{}, BadRequest("Bad Request. No key found for event file.")
	}

	key, err := url.PathUnescape(strings.ReplaceAll(record.S3.Object.Key, "+", " "))
	if err != nil {
		return Trigger{}, BadRequestWrap("Bad Request. Invalid key for event file.", err)
	}

	return Trigger{
		Bucket:    record.S3.Bucket.Name,
		Key:       key,
		EventName: record.EventName,
	}, nil
}
