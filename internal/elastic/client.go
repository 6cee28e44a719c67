// Package elastic implements the store contract on Elasticsearch 7.
//
// A database maps to two indices, <db>-samples and <db>-variants. Documents
// are keyed by the collection key, so create requests double as uniqueness
// checks.
package elastic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/cenkalti/backoff"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"go.uber.org/zap"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

var _ store.Client = (*Client)(nil)

// Config holds the connection settings.
type Config struct {
	URL      string
	Username string
	Password string

	// MaxRetries bounds client-level retries on 429/502/503/504. Default 5.
	MaxRetries int
	// RetryInitialInterval seeds the exponential retry delay. Default 100ms.
	RetryInitialInterval time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to one Elasticsearch cluster on behalf of one database.
type Client struct {
	es       *elasticsearch.Client
	database string
	logger   *zap.Logger
}

// appendCallScript adds params.call unless a call for the same variant is
// already present, in which case the update is a noop.
const appendCallScript = `boolean found = false;
for (def c : ctx._source.calls) {
  if (c.variant == params.call.variant) { found = true; break; }
}
if (found) { ctx.op = 'none'; } else { ctx._source.calls.add(params.call); }`

// New creates a client for database. Index names are lowercased.
func New(cfg Config, database string) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elasticsearch url is required")
	}
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 100 * time.Millisecond
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,

		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff:  retryDelay(cfg.RetryInitialInterval),
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{
		es:       es,
		database: strings.ToLower(database),
		logger:   zap.NewNop(),
	}, nil
}

// retryDelay returns the delay before retry attempt i (1-based). A fresh
// ExponentialBackOff per call keeps concurrent requests independent.
func retryDelay(initial time.Duration) func(int) time.Duration {
	return func(i int) time.Duration {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = 5 * time.Second
		d := b.NextBackOff()
		for n := 1; n < i; n++ {
			d = b.NextBackOff()
		}
		return d
	}
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
	c.logger.Debug("elasticsearch client", zap.String("version", elasticsearch.Version))
}

// Index returns the index name backing a collection.
func (c *Client) Index(collection string) string {
	return c.database + "-" + collection
}

func (c *Client) index(collection string) (string, error) {
	if collection != store.Samples && collection != store.Variants {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	return c.Index(collection), nil
}

// Close releases nothing; HTTP connections are pooled by the transport.
func (c *Client) Close() error { return nil }

func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	idx, err := c.index(name)
	if err != nil {
		return false, err
	}
	res, err := esapi.IndicesExistsRequest{Index: []string{idx}}.Do(ctx, c.es)
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", idx, err)
	}
	defer drain(res)
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("index exists %s: %s", idx, res.Status())
}

// mappings declares keyword fields for keys so term lookups are exact.
var mappings = map[string]string{
	store.Samples: `{"mappings":{"properties":{
		"id":{"type":"keyword"},
		"calls":{"properties":{"variant":{"type":"keyword"},"phased":{"type":"boolean"},"genotype":{"type":"integer"}}}}}}`,
	store.Variants: `{"mappings":{"properties":{
		"key":{"type":"keyword"},
		"names":{"type":"keyword"},
		"chromosome":{"type":"long"},
		"position":{"type":"keyword"},
		"filter":{"type":"keyword"},
		"reference_base":{"type":"keyword"},
		"alternate_bases":{"type":"keyword"},
		"alternate_structure":{"type":"object","enabled":false},
		"info":{"type":"object","enabled":false}}}}`,
}

// CreateCollection creates the index. A concurrent creator is tolerated.
func (c *Client) CreateCollection(ctx context.Context, name string) error {
	idx, err := c.index(name)
	if err != nil {
		return err
	}
	res, err := esapi.IndicesCreateRequest{
		Index: idx,
		Body:  strings.NewReader(mappings[name]),
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("create index %s: %w", idx, err)
	}
	defer drain(res)
	if !res.IsError() {
		c.logger.Info("created index", zap.String("index", idx))
		return nil
	}
	if errorType(res) == "resource_already_exists_exception" {
		return nil
	}
	return fmt.Errorf("create index %s: %s", idx, res.Status())
}

func (c *Client) Collection(ctx context.Context, name string) (store.CollectionInfo, error) {
	idx, err := c.index(name)
	if err != nil {
		return store.CollectionInfo{}, err
	}
	res, err := esapi.CountRequest{Index: []string{idx}}.Do(ctx, c.es)
	if err != nil {
		return store.CollectionInfo{}, fmt.Errorf("count %s: %w", idx, err)
	}
	defer drain(res)
	if res.IsError() {
		return store.CollectionInfo{}, fmt.Errorf("count %s: %s", idx, res.Status())
	}
	parsed, err := parseBody(res)
	if err != nil {
		return store.CollectionInfo{}, fmt.Errorf("count %s: %w", idx, err)
	}
	count, ok := parsed.Path("count").Data().(float64)
	if !ok {
		return store.CollectionInfo{}, fmt.Errorf("count %s: missing count in response", idx)
	}
	return store.CollectionInfo{Name: name, Documents: int64(count)}, nil
}

// fieldTypes are the mapping types of the indexable fields.
var fieldTypes = map[string]map[string]string{
	store.Samples:  {store.SampleKeyField: "keyword"},
	store.Variants: {store.VariantKeyField: "keyword", "chromosome": "long", "position": "keyword", "filter": "keyword", "reference_base": "keyword"},
}

// EnsureIndex puts the field mapping. Every mapped field is indexed by
// Elasticsearch; uniqueness of key fields follows from their use as _id.
func (c *Client) EnsureIndex(ctx context.Context, collection, field string, _ bool) error {
	idx, err := c.index(collection)
	if err != nil {
		return err
	}
	typ, ok := fieldTypes[collection][field]
	if !ok {
		return fmt.Errorf("elasticsearch: no indexable field %q in %s", field, collection)
	}
	body := gabs.New()
	if _, err := body.Set(typ, "properties", field, "type"); err != nil {
		return fmt.Errorf("build mapping: %w", err)
	}
	res, err := esapi.IndicesPutMappingRequest{
		Index: []string{idx},
		Body:  strings.NewReader(body.String()),
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("put mapping %s.%s: %w", idx, field, err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("put mapping %s.%s: %s", idx, field, res.Status())
	}
	return nil
}

// maxIDBytes is the Elasticsearch limit on _id length.
const maxIDBytes = 512

// docID returns the _id for a collection key. Keys are arbitrary VCF text,
// so anything that is not a short run of URL-safe characters is replaced by
// its SHA-256 digest. The document body still carries the original key.
func docID(key string) string {
	if key != "" && key != "." && key != ".." && len(key) <= maxIDBytes && urlSafe(key) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256-" + hex.EncodeToString(sum[:])
}

func urlSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-', c == ':':
		default:
			return false
		}
	}
	return true
}

type sampleDoc struct {
	ID    string     `json:"id"`
	Calls []vcf.Call `json:"calls"`
}

func (c *Client) InsertSample(ctx context.Context, id string) (store.Outcome, error) {
	return c.create(ctx, store.Samples, id, sampleDoc{ID: id, Calls: []vcf.Call{}})
}

func (c *Client) InsertVariant(ctx context.Context, v *vcf.Variant) (store.Outcome, error) {
	return c.create(ctx, store.Variants, v.Key, v)
}

// create indexes doc with op_type create; 409 means the key is taken and
// 400 means the cluster refused the document.
func (c *Client) create(ctx context.Context, collection, id string, doc any) (store.Outcome, error) {
	idx, err := c.index(collection)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("%w: encode %s %s: %w", store.ErrRejected, collection, id, err)
	}
	res, err := esapi.CreateRequest{
		Index:      idx,
		DocumentID: docID(id),
		Body:       bytes.NewReader(b),
	}.Do(ctx, c.es)
	if err != nil {
		return 0, fmt.Errorf("create %s/%s: %w", idx, id, err)
	}
	defer drain(res)
	switch {
	case res.StatusCode == http.StatusConflict:
		return store.AlreadyExists, nil
	case res.StatusCode == http.StatusBadRequest:
		return 0, fmt.Errorf("%w: create %s/%s: %s", store.ErrRejected, idx, id, errorType(res))
	case res.IsError():
		return 0, fmt.Errorf("create %s/%s: %s", idx, id, res.Status())
	}
	return store.Created, nil
}

// AppendCall runs a scripted update on the sample document. The update is
// applied atomically by Elasticsearch; version conflicts are retried there.
func (c *Client) AppendCall(ctx context.Context, sampleID string, call vcf.Call) (store.Outcome, error) {
	idx := c.Index(store.Samples)

	body := gabs.New()
	if _, err := body.Set(appendCallScript, "script", "source"); err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	if _, err := body.Set("painless", "script", "lang"); err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	if _, err := body.Set(call, "script", "params", "call"); err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	retryOnConflict := 5
	res, err := esapi.UpdateRequest{
		Index:           idx,
		DocumentID:      docID(sampleID),
		Body:            strings.NewReader(body.String()),
		RetryOnConflict: &retryOnConflict,
	}.Do(ctx, c.es)
	if err != nil {
		return 0, fmt.Errorf("update %s/%s: %w", idx, sampleID, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return store.NotFound, nil
	}
	if res.StatusCode == http.StatusBadRequest {
		return 0, fmt.Errorf("%w: update %s/%s: %s", store.ErrRejected, idx, sampleID, errorType(res))
	}
	if res.IsError() {
		return 0, fmt.Errorf("update %s/%s: %s", idx, sampleID, res.Status())
	}
	parsed, err := parseBody(res)
	if err != nil {
		return 0, fmt.Errorf("update %s/%s: %w", idx, sampleID, err)
	}
	switch result, _ := parsed.Path("result").Data().(string); result {
	case "noop":
		return store.AlreadyExists, nil
	case "updated":
		return store.Appended, nil
	default:
		return 0, fmt.Errorf("update %s/%s: unexpected result %q", idx, sampleID, result)
	}
}

func parseBody(res *esapi.Response) (*gabs.Container, error) {
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	parsed, err := gabs.ParseJSON(b)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return parsed, nil
}

// errorType extracts error.type from an error response, or "".
func errorType(res *esapi.Response) string {
	parsed, err := parseBody(res)
	if err != nil {
		return ""
	}
	t, _ := parsed.Path("error.type").Data().(string)
	return t
}

func drain(res *esapi.Response) {
	if res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
