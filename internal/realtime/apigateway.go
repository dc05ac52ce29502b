package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
)

// PostToConnectionAPI is the subset of the management API client used here.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// NewManagementClient creates a management API client for a websocket
// stage endpoint such as https://abc.execute-api.us-east-1.amazonaws.com/prod.
func NewManagementClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// APIGatewayDeliverer delivers through a managed websocket gateway.
type APIGatewayDeliverer struct {
	client PostToConnectionAPI
}

func NewAPIGatewayDeliverer(client PostToConnectionAPI) *APIGatewayDeliverer {
	return &APIGatewayDeliverer{client: client}
}

func (d *APIGatewayDeliverer) Deliver(ctx context.Context, connectionID string, payload []byte) error {
	_, err := d.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err == nil {
		return nil
	}

	var gone *types.GoneException
	if errors.As(err, &gone) {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}
	return fmt.Errorf("%w: %s: %w", ErrDelivery, connectionID, err)
}

var _ Deliverer = (*APIGatewayDeliverer)(nil)
