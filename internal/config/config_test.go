package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.PubSub.Provider)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, 8, cfg.Scrape.MaxConcurrent)
	require.Equal(t, time.Second, cfg.Scrape.GlobalCooldown)
	require.Equal(t, 5*time.Second, cfg.Scrape.DomainCooldown)
	require.Equal(t, 48*time.Hour, cfg.Scrape.FreshnessWindow)
	require.Equal(t, 384, cfg.Embeddings.Dimension)
	require.Contains(t, cfg.Scrape.TrickyDomains, "www.reuters.com")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  provider: gcs
  gcs_bucket: articles-prod
scrape:
  domain_cooldown: 10s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "gcs", cfg.Storage.Provider)
	require.Equal(t, "articles-prod", cfg.Storage.GCSBucket)
	require.Equal(t, 10*time.Second, cfg.Scrape.DomainCooldown)
}

func TestValidateRejectsBadProviders(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Storage.Provider = "s3"
	require.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.PubSub.Provider = "pubsub"
	require.Error(t, cfg.Validate(), "pubsub provider requires project and topic")

	cfg.PubSub.ProjectID = "proj"
	cfg.PubSub.TopicID = "articles"
	require.NoError(t, cfg.Validate())
}

func TestValidateGCSRequiresBucket(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Storage.Provider = "gcs"
	require.Error(t, cfg.Validate())
	cfg.Storage.GCSBucket = "b"
	require.NoError(t, cfg.Validate())
}
