package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESSink 把访问记录镜像到 Elasticsearch, 用于检索和看板, 数据库仍是唯一事实来源
type ESSink struct {
	client *elasticsearch.Client
	index  string
}

func NewESSink(client *elasticsearch.Client, index string) *ESSink {
	return &ESSink{client: client, index: index}
}

type esDocument struct {
	FileID      string  `json:"file_id"`
	ActorID     *string `json:"actor_id,omitempty"`
	ShareLinkID *uint64 `json:"share_link_id,omitempty"`
	AccessedAt  string  `json:"accessed_at"`
	AccessType  string  `json:"access_type"`
	IPAddress   string  `json:"ip_address"`
	UserAgent   string  `json:"user_agent"`
}

func (s *ESSink) Index(ctx context.Context, event *models.AccessEvent) error {
	body, err := json.Marshal(esDocument{
		FileID:      event.FileID,
		ActorID:     event.ActorID,
		ShareLinkID: event.ShareLinkID,
		AccessedAt:  event.AccessedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		AccessType:  string(event.AccessType),
		IPAddress:   event.IPAddress,
		UserAgent:   event.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("序列化访问记录失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: strconv.FormatUint(event.ID, 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("写入 Elasticsearch 失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("写入 Elasticsearch 失败: %s", res.Status())
	}
	return nil
}
