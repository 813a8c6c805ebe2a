// 迁移工具：按辖区 schema 逐个应用幂等 DDL
// 背景：SCHEMA_JURISDICTIONS 为逗号分隔的辖区列表，每个辖区一个 Postgres schema；
// 列表为空时只在当前 search_path 下建表
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/migrate"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}

	var schemas []string
	if v := strings.TrimSpace(os.Getenv("SCHEMA_JURISDICTIONS")); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				schemas = append(schemas, s)
			}
		}
	}
	if len(schemas) == 0 {
		schemas = []string{""}
	}

	for _, schema := range schemas {
		name := schema
		if name == "" {
			name = "(search_path)"
		}
		if err := migrate.EnsureSchema(db, schema); err != nil {
			l.Error("schema_error", "schema", name, "err", err)
			os.Exit(1)
		}
		l.Info("schema_ok", "schema", name)
		fmt.Println("migrated", name)
	}
	fmt.Println("=== migrate complete ===")
}
