package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  base_url: https://disk.example.com
database:
  driver: sqlite
  dsn: file:test.db
cache:
  type: memory
storage:
  type: local
security:
  master_key: 0123456789abcdef0123456789abcdef
  access_token_secret: share-secret
  access_token_ttl: 30m
identity:
  issuer: https://idp.example.com/realms/disk
  hmac_secret: idp-secret
scheduler:
  reconcile_spec: "@daily"
`

func load(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return Unmarshal(v)
}

func TestUnmarshalAppliesDefaults(t *testing.T) {
	cfg, err := load(t, sampleYAML)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://disk.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Security.AccessTokenTTL)
	assert.Equal(t, uint64(2<<30), cfg.Quota.StorageLimitBytes)
	assert.Equal(t, int64(100), cfg.Quota.MaxShareLinks)
	assert.Equal(t, 24, cfg.Share.DefaultExpiryHours)
	assert.Equal(t, "access-events", cfg.Elasticsearch.Index)
	assert.Equal(t, "@daily", cfg.Scheduler.ReconcileSpec)
	assert.Equal(t, 10000, cfg.Cache.Size)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		replace string
		with    string
	}{
		"driver":        {"driver: sqlite", "driver: oracle"},
		"storage":       {"type: local", "type: s3"},
		"cache":         {"type: memory", "type: memcached"},
		"short key":     {"master_key: 0123456789abcdef0123456789abcdef", "master_key: short"},
		"access secret": {"access_token_secret: share-secret", "access_token_secret: \"\""},
		"identity key":  {"hmac_secret: idp-secret", "hmac_secret: \"\""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := strings.Replace(sampleYAML, tc.replace, tc.with, 1)
			require.NotEqual(t, sampleYAML, doc)
			_, err := load(t, doc)
			assert.Error(t, err)
		})
	}

	_, err := load(t, sampleYAML+"quota:\n  max_share_links: 0\n")
	assert.Error(t, err)
}
