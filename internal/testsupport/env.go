package testsupport

import (
	"testing"

	"github.com/kelseyhightower/envconfig"

	"finresearch/internal/adapters/config"
)

// integrationRedisDB keeps test keys away from the default database, since
// the helpers flush it.
const integrationRedisDB = 15

// DatabaseConfigs holds the store sections the integration tests connect to
type DatabaseConfigs struct {
	Postgres   config.PostgresConfig
	ClickHouse config.ClickHouseConfig
	Redis      config.RedisConfig
}

// LoadDatabaseConfigsFromEnv reads the store settings with the same
// envconfig tags the service uses. The test is skipped under -short or when
// a required variable is unset.
func LoadDatabaseConfigsFromEnv(t *testing.T) DatabaseConfigs {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	var cfg DatabaseConfigs
	for name, section := range map[string]interface{}{
		"postgres":   &cfg.Postgres,
		"clickhouse": &cfg.ClickHouse,
		"redis":      &cfg.Redis,
	} {
		if err := envconfig.Process("", section); err != nil {
			t.Skipf("integration environment for %s not configured: %v", name, err)
		}
	}

	cfg.Postgres.MaxConns = 5
	if cfg.Redis.DB == 0 {
		cfg.Redis.DB = integrationRedisDB
	}

	return cfg
}
