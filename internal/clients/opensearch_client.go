package clients

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/tidwall/gjson"

	"github.com/spacesedan/stackenrich/config"
)

// Opensearch writes enriched records into a single index through the bulk
// API.
type Opensearch struct {
	Client       *opensearch.Client
	index        string
	maxItemsBulk int
}

func NewOpensearch(client *opensearch.Client, index string, maxItemsBulk int) *Opensearch {
	return &Opensearch{
		Client:       client,
		index:        index,
		maxItemsBulk: maxItemsBulk,
	}
}

// NewOpensearchClient builds a client for the configured endpoint. In prod
// requests are signed for the AWS managed domain, elsewhere basic auth is
// used.
func NewOpensearchClient(ctx context.Context, cfg config.Config) (*opensearch.Client, error) {
	var osCfg opensearch.Config

	if cfg.IsProd() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("[OpenSearchClient] failed to load AWS config: %w", err)
		}

		osCfg = opensearch.Config{
			Addresses: []string{cfg.OpensearchEndpoint},
			Transport: NewSigV4Transport(awsCfg.Credentials, v4.NewSigner(), awsCfg.Region, "es"),
		}
	} else {
		if cfg.OpensearchEndpoint == "" {
			return nil, fmt.Errorf("[OpenSearchClient] missing endpoint for opensearch")
		}
		osCfg = opensearch.Config{
			Addresses: []string{cfg.OpensearchEndpoint},
			Username:  cfg.OpensearchUser,
			Password:  cfg.OpensearchPassword,
		}
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("[OpenSearchClient] failed to initialize client: %w", err)
	}
	return client, nil
}

type sigV4Transport struct {
	credentials aws.CredentialsProvider
	signer      *v4.Signer
	region      string
	service     string
	next        http.RoundTripper
}

func NewSigV4Transport(creds aws.CredentialsProvider, signer *v4.Signer, region string, service string) http.RoundTripper {
	return &sigV4Transport{
		credentials: creds,
		signer:      signer,
		region:      region,
		service:     service,
		next:        http.DefaultTransport,
	}
}

func (t *sigV4Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, err
	}

	signedReq := req.Clone(req.Context())
	signedReq.Header.Del("Authorization")

	// Bulk bodies are signed with their payload hash.
	payloadHash := v4.GetPayloadHash(req.Context())
	if payloadHash == "" {
		payloadHash, err = hashBody(signedReq)
		if err != nil {
			return nil, err
		}
	}

	err = t.signer.SignHTTP(
		req.Context(),
		creds,
		signedReq,
		payloadHash,
		t.service,
		t.region,
		time.Now(),
	)
	if err != nil {
		return nil, err
	}

	return t.next.RoundTrip(signedReq)
}

func hashBody(req *http.Request) (string, error) {
	h := sha256.New()
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return "", err
		}
		defer body.Close()
		if _, err := io.Copy(h, body); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IndexURL is the index path requests are relative to. The client fills in
// the scheme and host of the configured node.
func (o *Opensearch) IndexURL() string {
	return "/" + o.index
}

func (o *Opensearch) MaxItemsBulk() int {
	return o.maxItemsBulk
}

type bulkRequest struct {
	ctx  context.Context
	url  string
	body []byte
}

func (r bulkRequest) GetRequest() (*http.Request, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPut, r.url, bytes.NewReader(r.body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	return req, nil
}

// Put sends one newline-delimited bulk body. Per-document failures reported
// by the cluster are logged, not returned.
func (o *Opensearch) Put(ctx context.Context, url string, body []byte) error {
	res, err := o.Client.Do(ctx, bulkRequest{ctx: ctx, url: url, body: body}, nil)
	if err != nil {
		slog.Error("[OpenSearchClient] Bulk request failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("[OpenSearchClient] failed to read bulk response: %w", err)
	}

	if res.IsError() {
		if len(body) == 0 {
			slog.Warn("[OpenSearchClient] Cluster rejected empty bulk request",
				slog.String("status", res.Status()))
			return nil
		}
		slog.Error("[OpenSearchClient] OpenSearch bulk error",
			slog.String("status", res.Status()),
			slog.String("reason", gjson.GetBytes(payload, "error.reason").String()))
		return fmt.Errorf("opensearch error: %s", res.Status())
	}

	if gjson.GetBytes(payload, "errors").Bool() {
		failed := gjson.GetBytes(payload, "items.#.index.error").Array()
		slog.Warn("[OpenSearchClient] Some documents were rejected",
			slog.String("url", url),
			slog.Int("failed", len(failed)),
			slog.Int("items", int(gjson.GetBytes(payload, "items.#").Int())))
	}

	return nil
}

func (o *Opensearch) IsHealthy(ctx context.Context) bool {
	req := opensearchapi.ClusterHealthReq{}
	res, err := o.Client.Do(ctx, req, nil)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	if res.IsError() {
		return false
	}

	return res.StatusCode == http.StatusOK
}
