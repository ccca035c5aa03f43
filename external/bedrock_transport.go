// Bedrock signing transport for generation calls.
//
// Bedrock has no API key; every request is signed with AWS SigV4 for the
// "bedrock" service. The signer sits in the http.Client transport so CallLLM
// stays provider-agnostic.
package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const defaultBedrockRegion = "us-east-1"

// BedrockSigningTransport is an http.RoundTripper that signs requests with SigV4.
type BedrockSigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewBedrockSigningTransport builds a transport from the standard AWS
// credential chain. base may be nil.
func NewBedrockSigningTransport(ctx context.Context, region string, base http.RoundTripper) (*BedrockSigningTransport, error) {
	if region == "" {
		region = defaultBedrockRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	return NewBedrockSigningTransportWithCredentials(cfg.Credentials, region, base), nil
}

// NewBedrockSigningTransportWithCredentials builds a transport from explicit credentials.
func NewBedrockSigningTransportWithCredentials(creds aws.CredentialsProvider, region string, base http.RoundTripper) *BedrockSigningTransport {
	if region == "" {
		region = defaultBedrockRegion
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &BedrockSigningTransport{
		credentials: creds,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// Client returns an http.Client using this transport.
func (t *BedrockSigningTransport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip signs a clone of req and sends it.
func (t *BedrockSigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
	}

	signed := req.Clone(req.Context())
	signed.Body = io.NopCloser(bytes.NewReader(body))
	signed.ContentLength = int64(len(body))

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	if err := t.signer.SignHTTP(req.Context(), creds, signed, hex.EncodeToString(sum[:]), "bedrock", t.region, t.now()); err != nil {
		return nil, fmt.Errorf("failed to sign Bedrock request: %w", err)
	}
	return t.base.RoundTrip(signed)
}
