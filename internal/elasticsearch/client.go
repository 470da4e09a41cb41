package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"skywidget/internal/config"
	"skywidget/internal/logger"
)

// AlertDocument 写入 ES 的告警事件
type AlertDocument struct {
	RecordID  string    `json:"record_id"`
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	NodeID    string    `json:"node_id"`
	NodeName  string    `json:"node_name"`
	Source    string    `json:"source"` // local 或来源节点名
	Timestamp time.Time `json:"@timestamp"`
}

type Client struct {
	es     *elasticsearch.Client
	config config.ElasticsearchConfig
	now    func() time.Time
	log    *zap.Logger
}

// Option 客户端选项
type Option func(*elasticsearch.Config)

// WithTransport 替换底层传输（测试用）
func WithTransport(rt http.RoundTripper) Option {
	return func(c *elasticsearch.Config) { c.Transport = rt }
}

// NewClient 创建客户端；未启用时返回 nil, nil
func NewClient(cfg config.ElasticsearchConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	for _, opt := range opts {
		opt(&esConfig)
	}

	es, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	// 测试连接
	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	client := &Client{
		es:     es,
		config: cfg,
		now:    time.Now,
		log:    logger.Named("elasticsearch"),
	}

	client.log.Info("Elasticsearch client initialized", zap.Strings("addresses", cfg.Addresses))
	return client, nil
}

// indexName 按日期滚动的索引名
func (c *Client) indexName(t time.Time) string {
	return fmt.Sprintf("%s-%s", c.config.IndexPrefix, t.UTC().Format("2006.01.02"))
}

// IndexAlert 写入一条告警事件
func (c *Client) IndexAlert(ctx context.Context, doc *AlertDocument) error {
	if c == nil || c.es == nil {
		return nil
	}

	if doc.Timestamp.IsZero() {
		doc.Timestamp = c.now().UTC()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal alert document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.indexName(doc.Timestamp),
		DocumentID: doc.RecordID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to index alert: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch indexing error: %s", res.String())
	}

	c.log.Debug("Alert indexed",
		zap.String("index", c.indexName(doc.Timestamp)),
		zap.String("rule_id", doc.RuleID),
	)
	return nil
}

// SearchQuery 告警事件查询条件
type SearchQuery struct {
	RuleID    string     `json:"rule_id,omitempty"`
	Severity  string     `json:"severity,omitempty"`
	NodeID    string     `json:"node_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	QueryText string     `json:"query_text,omitempty"`
	Size      int        `json:"size,omitempty"`
	From      int        `json:"from,omitempty"`
}

type SearchResult struct {
	Total int64           `json:"total"`
	Hits  []AlertDocument `json:"hits"`
}

// buildSearchBody 构造 bool 查询
func buildSearchBody(query SearchQuery) map[string]any {
	must := []map[string]any{}

	for field, value := range map[string]string{
		"rule_id":  query.RuleID,
		"severity": query.Severity,
		"node_id":  query.NodeID,
	} {
		if value != "" {
			must = append(must, map[string]any{"term": map[string]any{field: value}})
		}
	}

	if query.StartTime != nil || query.EndTime != nil {
		rangeQuery := map[string]any{}
		if query.StartTime != nil {
			rangeQuery["gte"] = query.StartTime.Format(time.RFC3339)
		}
		if query.EndTime != nil {
			rangeQuery["lte"] = query.EndTime.Format(time.RFC3339)
		}
		must = append(must, map[string]any{"range": map[string]any{"@timestamp": rangeQuery}})
	}

	if query.QueryText != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  query.QueryText,
				"fields": []string{"message", "rule_name"},
			},
		})
	}

	size := query.Size
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100 // 最大 100 条
	}

	return map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": must}},
		"size":  size,
		"from":  max(query.From, 0),
		"sort": []map[string]any{
			{"@timestamp": map[string]any{"order": "desc"}},
		},
	}
}

// SearchAlerts 搜索告警事件
func (c *Client) SearchAlerts(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	if c == nil || c.es == nil {
		return &SearchResult{Hits: []AlertDocument{}}, nil
	}

	body, err := json.Marshal(buildSearchBody(query))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.IndexPrefix + "-*"},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source AlertDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	result := &SearchResult{
		Total: response.Hits.Total.Value,
		Hits:  make([]AlertDocument, 0, len(response.Hits.Hits)),
	}
	for _, hit := range response.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}

	c.log.Debug("Alert search completed",
		zap.Int64("total", result.Total),
		zap.Int("returned", len(result.Hits)),
	)
	return result, nil
}

// CreateIndexTemplate 创建索引模板
func (c *Client) CreateIndexTemplate(ctx context.Context) error {
	if c == nil || c.es == nil {
		return nil
	}

	templateName := c.config.IndexPrefix + "-template"

	template := map[string]any{
		"index_patterns": []string{c.config.IndexPrefix + "-*"},
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
				"refresh_interval":   "5s",
			},
			"mappings": map[string]any{
				"properties": map[string]any{
					"record_id":  map[string]string{"type": "keyword"},
					"rule_id":    map[string]string{"type": "keyword"},
					"rule_name":  map[string]string{"type": "text"},
					"message":    map[string]string{"type": "text"},
					"severity":   map[string]string{"type": "keyword"},
					"node_id":    map[string]string{"type": "keyword"},
					"node_name":  map[string]string{"type": "keyword"},
					"source":     map[string]string{"type": "keyword"},
					"@timestamp": map[string]string{"type": "date"},
				},
			},
		},
	}

	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal index template: %w", err)
	}

	req := esapi.IndicesPutIndexTemplateRequest{
		Name: templateName,
		Body: bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		c.log.Warn("Failed to create index template", zap.String("response", res.String()))
		return nil
	}
	c.log.Info("Index template created", zap.String("template", templateName))
	return nil
}
