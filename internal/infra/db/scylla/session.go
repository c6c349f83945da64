package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"rentalhub/internal/infra/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession ensures the keyspace and chat tables exist and returns a session
// bound to the keyspace.
func NewSession(cfg config.Config, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.ScyllaKeyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", cfg.ScyllaKeyspace)
	}

	baseCluster := newCluster(cfg)
	baseSession, err := baseCluster.CreateSession()
	if err != nil {
		return nil, classify(err, "connect to scylla")
	}
	defer baseSession.Close()

	ctx := context.Background()
	if err := baseSession.Query(keyspaceStatement(cfg.ScyllaKeyspace, cfg.ReplicationFactor)).WithContext(ctx).Exec(); err != nil {
		return nil, fmt.Errorf("create keyspace: %w", err)
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.ScyllaKeyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, classify(err, "connect to keyspace "+cfg.ScyllaKeyspace)
	}
	for _, stmt := range schemaStatements(cfg.ScyllaKeyspace) {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.ScyllaHosts, "keyspace", cfg.ScyllaKeyspace)
	}
	return session, nil
}

func newCluster(cfg config.Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Timeout = cfg.ScyllaTimeout
	cluster.Consistency = cfg.ScyllaConsistency
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.ScyllaUsername != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.ScyllaUsername,
			Password: cfg.ScyllaPassword,
		}
		// avoid long stalls on auth/connect
		cluster.ConnectTimeout = cfg.ScyllaTimeout
	}
	return cluster
}

func keyspaceStatement(keyspace string, replicationFactor int) string {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		keyspace, replicationFactor,
	)
}

// schemaStatements lists the chat schema. Unread counters live in their own
// counter table because Scylla cannot mix counters with regular columns.
func schemaStatements(keyspace string) []string {
	return []string{
		fmt.Sprintf(`CREATE TYPE IF NOT EXISTS %s.attachment (
	kind text,
	url text,
	name text,
	size bigint,
	mime_type text
)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.conversations (
	id text PRIMARY KEY,
	participants list<text>,
	participants_key text,
	property_id text,
	booking_id text,
	status text,
	blocked_by text,
	last_message_id text,
	last_message_sender_id text,
	last_message_preview text,
	last_message_at timestamp,
	created_at timestamp,
	updated_at timestamp
)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.conversations_by_key (
	participants_key text PRIMARY KEY,
	conversation_id text
)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.conversations_by_user (
	user_id text,
	conversation_id text,
	PRIMARY KEY (user_id, conversation_id)
)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.conversation_unread (
	conversation_id text,
	user_id text,
	unread counter,
	PRIMARY KEY (conversation_id, user_id)
)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.messages (
	conversation_id text,
	created_at timestamp,
	message_id text,
	sender_id text,
	content text,
	attachments list<frozen<attachment>>,
	status text,
	read_by map<text, timestamp>,
	deleted_for set<text>,
	updated_at timestamp,
	PRIMARY KEY (conversation_id, created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at DESC, message_id DESC)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.messages_by_id (
	message_id text PRIMARY KEY,
	conversation_id text,
	created_at timestamp
)`, keyspace),
	}
}
