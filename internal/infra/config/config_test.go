package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, cfg.S3Endpoint, cfg.S3PublicEndpoint)
	assert.True(t, cfg.MongoTransactions)
	assert.True(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	t.Setenv("WS_EVENT_RATE", "2.5")
	t.Setenv("MONGO_TRANSACTIONS", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, gocql.LocalQuorum, cfg.ScyllaConsistency)
	assert.InDelta(t, 2.5, cfg.WSEventRate, 0.0001)
	assert.False(t, cfg.MongoTransactions)
	assert.False(t, cfg.IsDev())
}

func TestLoadErrorsNameTheKey(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing secret", env: map[string]string{}, want: "JWT_SECRET"},
		{name: "mongo without uri", env: map[string]string{"JWT_SECRET": "s", "STORE_BACKEND": "mongo"}, want: "MONGO_URI"},
		{name: "bad backend", env: map[string]string{"JWT_SECRET": "s", "STORE_BACKEND": "sqlite"}, want: "STORE_BACKEND"},
		{name: "bad duration", env: map[string]string{"JWT_SECRET": "s", "WS_PING_INTERVAL": "soon"}, want: "WS_PING_INTERVAL"},
		{name: "bad bool", env: map[string]string{"JWT_SECRET": "s", "S3_USE_SSL": "maybe"}, want: "S3_USE_SSL"},
		{name: "cloudinary without url", env: map[string]string{"JWT_SECRET": "s", "UPLOAD_BACKEND": "cloudinary"}, want: "CLOUDINARY_URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
