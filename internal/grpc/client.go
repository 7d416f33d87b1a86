package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"fleetwatch/tracking/internal/access"
)

// Client calls TrackingQueryService with the service token attached.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewClient(conn grpc.ClientConnInterface, serviceToken string) *Client {
	return &Client{conn: conn, token: serviceToken}
}

func Dial(ctx context.Context, addr string, timeout time.Duration) (*grpc.ClientConn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (c *Client) ResolveScope(ctx context.Context, caller access.Caller) (*structpb.Struct, error) {
	return c.invoke(ctx, resolveScopeMethod, caller)
}

func (c *Client) CurrentPositions(ctx context.Context, caller access.Caller) (*structpb.Struct, error) {
	return c.invoke(ctx, currentPositionsMethod, caller)
}

func (c *Client) invoke(ctx context.Context, method string, caller access.Caller) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"callerId": caller.ID,
		"role":     string(caller.Role),
		"orgId":    caller.OrgID,
	})
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, serviceTokenHeader, c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
