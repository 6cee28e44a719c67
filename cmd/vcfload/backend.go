package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vcfload/internal/boltstore"
	"github.com/inodb/vcfload/internal/duckdb"
	"github.com/inodb/vcfload/internal/elastic"
	"github.com/inodb/vcfload/internal/store"
)

// Backend names accepted by store.backend.
const (
	BackendDuckDB        = "duckdb"
	BackendBolt          = "bolt"
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
)

// validDatabaseName rejects names that cannot become a file or index name.
func validDatabaseName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid database name %q", name)
	}
	if strings.ContainsAny(name, `/\ `) {
		return fmt.Errorf("invalid database name %q: must not contain path separators or spaces", name)
	}
	return nil
}

// openStore opens the configured backend for database.
func openStore(database string, logger *zap.Logger) (store.Client, error) {
	backend := viper.GetString("store.backend")
	dataDir := viper.GetString("store.data_dir")

	switch backend {
	case BackendDuckDB:
		path := filepath.Join(dataDir, database+".duckdb")
		logger.Info("opening duckdb store", zap.String("path", path))
		s, err := duckdb.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		path := filepath.Join(dataDir, database+".db")
		logger.Info("opening bolt store", zap.String("path", path))
		db, err := boltstore.Open(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendElasticsearch:
		c, err := elastic.New(elastic.Config{
			URL:      viper.GetString("store.elasticsearch.url"),
			Username: viper.GetString("store.elasticsearch.username"),
			Password: viper.GetString("store.elasticsearch.password"),
		}, database)
		if err != nil {
			return nil, err
		}
		c.SetLogger(logger)
		logger.Info("using elasticsearch store",
			zap.String("url", viper.GetString("store.elasticsearch.url")),
			zap.String("samples_index", c.Index(store.Samples)),
			zap.String("variants_index", c.Index(store.Variants)))
		return c, nil
	case BackendMemory:
		logger.Info("using in-memory store; nothing is persisted")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q (want %s, %s, %s or %s)",
		backend, BackendDuckDB, BackendBolt, BackendElasticsearch, BackendMemory)
}
