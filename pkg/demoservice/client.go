// Package demoservice is a downstream gRPC caller the orchestrator wraps in
// its demo binary. It calls a service's reflection-advertised method by
// name without needing generated stubs, adapted from the teacher's
// Starlink client (pkg/starlink/client.go) which speaks to a device's gRPC
// API the same dynamic, reflection-based way.
package demoservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"

	"github.com/adaptivebreaker/breaker/pkg/logx"
)

// Client calls a single fully-qualified gRPC method on a reflection-enabled
// downstream service. It exists purely to give the demo binary's
// orchestrator.Execute call something concrete to protect.
type Client struct {
	target  string
	method  string
	timeout time.Duration
	logger  *logx.Logger
}

// New builds a Client. target is a "host:port" dial string, method is the
// fully-qualified "package.Service/Method" name to invoke with an empty
// request body.
func New(target, method string, timeout time.Duration, logger *logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{target: target, method: method, timeout: timeout, logger: logger}
}

// Call invokes the configured method and returns its JSON-formatted
// response. It is the Op[string] a demo Execute call wraps.
func (c *Client) Call(ctx context.Context) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, c.target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return "", fmt.Errorf("demoservice: dial %s: %w", c.target, err)
	}
	defer conn.Close()

	reflectionClient := grpcreflect.NewClient(ctx, grpc_reflection_v1alpha.NewServerReflectionClient(conn))
	descSource := grpcurl.DescriptorSourceFromServer(ctx, reflectionClient)

	requestReader := grpcurl.NewJSONRequestParser(strings.NewReader("{}"), grpcurl.AnyResolverFromDescriptorSource(descSource))

	var out strings.Builder
	handler := &grpcurl.DefaultEventHandler{
		Out:            &out,
		Formatter:      grpcurl.NewJSONFormatter(false, grpcurl.AnyResolverFromDescriptorSource(descSource)),
		VerbosityLevel: 0,
	}

	if err := grpcurl.InvokeRPC(ctx, descSource, conn, c.method, nil, handler, requestReader.Next); err != nil {
		return "", fmt.Errorf("demoservice: invoke %s: %w", c.method, err)
	}

	c.logger.Debug("demo call succeeded", "method", c.method, "response_size", out.Len())
	return out.String(), nil
}
