// 审计工具：线上库结构 + 对象存储导出文件的一致性核对
// 背景：只读取、只报告，不修复；有 finding 也退出 0，连接失败才算致命
package main

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/audit"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	pstore "github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func printFindings(title string, findings []audit.Finding) {
	fmt.Printf("\n%s: %d finding(s)\n", title, len(findings))
	if len(findings) == 0 {
		return
	}
	fmt.Printf("%-22s %-6s %-28s %-20s %-24s %s\n", "kind", "sev", "table/object", "column", "want", "got")
	for _, f := range findings {
		fmt.Printf("%-22s %-6s %-28s %-20s %-24s %s\n", f.Kind, f.Severity, f.Table, f.Column, f.Want, f.Got)
	}
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	ctx := context.Background()

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

	catalog, err := audit.LoadCatalog(ctx, db)
	if err != nil {
		l.Error("catalog_load_error", "err", err)
		os.Exit(1)
	}
	schemaFindings := audit.DiffSchema(catalog, audit.ExpectedColumns())
	for _, f := range schemaFindings {
		l.Warn("schema_finding", "kind", f.Kind, "severity", f.Severity, "table", f.Table, "column", f.Column)
	}
	printFindings("schema audit", schemaFindings)

	var objectFindings []audit.Finding
	bucket := os.Getenv("AUDIT_BUCKET")
	if bucket == "" {
		fmt.Println("\nobject audit skipped: AUDIT_BUCKET not set")
	} else {
		client, err := storage.NewClient(ctx)
		if err != nil {
			l.Error("gcs_client_error", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		objects, err := audit.ListBucket(ctx, client, bucket, os.Getenv("AUDIT_PREFIX"))
		if err != nil {
			l.Error("gcs_list_error", "bucket", bucket, "err", err)
			os.Exit(1)
		}
		registry, err := pstore.AttachDB(db).SourceFiles(ctx)
		if err != nil {
			l.Error("source_files_load_error", "err", err)
			os.Exit(1)
		}
		objectFindings = audit.CrossCheck(objects, registry)
		for _, f := range objectFindings {
			l.Warn("object_finding", "kind", f.Kind, "severity", f.Severity, "object", f.Table)
		}
		printFindings("object audit", objectFindings)
	}

	if path := os.Getenv("AUDIT_XLSX"); path != "" {
		if err := audit.WriteXLSX(path, schemaFindings, objectFindings); err != nil {
			l.Warn("xlsx_write_error", "path", path, "err", err)
		} else {
			fmt.Println("\nreport written:", path)
		}
	}
	fmt.Printf("\n=== audit complete: %d schema finding(s), %d object finding(s) ===\n",
		len(schemaFindings), len(objectFindings))
}
