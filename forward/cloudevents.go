package forward

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/client"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/batch"
)

// CloudEventsForwarder 把结果作为 CloudEvent（binary 模式）发送到 sink
type CloudEventsForwarder struct {
	ceClient  client.Client
	source    string
	eventType string
	timeout   time.Duration
}

func NewCloudEventsForwarder(sinkURL, source, eventType string, timeout time.Duration) (*CloudEventsForwarder, error) {
	ceClient, err := ce.NewClientHTTP(ce.WithTarget(sinkURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}

	return &CloudEventsForwarder{
		ceClient:  ceClient,
		source:    source,
		eventType: eventType,
		timeout:   timeout,
	}, nil
}

func (f *CloudEventsForwarder) Forward(ctx context.Context, results []batch.Result) error {
	if results == nil {
		results = []batch.Result{}
	}

	event := ce.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(f.source)
	event.SetType(f.eventType)
	event.SetTime(time.Now())
	event.SetExtension("imagecount", len(results))

	if err := event.SetData(ce.ApplicationJSON, Payload{Images: results}); err != nil {
		return fmt.Errorf("failed to set event data: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	result := f.ceClient.Send(ctx, event)

	var httpResult *cehttp.Result
	if ce.ResultAs(result, &httpResult) {
		if httpResult.StatusCode != http.StatusOK {
			return &StatusError{StatusCode: httpResult.StatusCode}
		}
	} else if !ce.IsACK(result) {
		return fmt.Errorf("failed to deliver event: %w", result)
	}

	zerolog.Ctx(ctx).Info().
		Str("event_id", event.ID()).
		Int("images", len(results)).
		Msg("batch forwarded as cloudevent")
	return nil
}
