// 包 store：PostgreSQL 数据访问层
// 背景：重建、抓取登记、训练记录共用一个入口；所有标识符来自编译期常量或 geo 白名单，
// 业务值一律走绑定参数，查询文本不接受外部字符串
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

const (
	// FactTable：parcel 级预测事实表（本工具只读）
	FactTable = "_pl_parcel_forecasts"
	// LadderTable：parcel 到各级地理单元的阶梯表（本工具只读）
	LadderTable = "_pl_parcel_geo"
	// OutlierColumn：事实表的可选离群标记列，旧 schema 可能缺失
	OutlierColumn = "is_outlier"
)

// Store：数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

// Open：使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

// AttachDB：复用外部已打开的连接池
func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close：关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// HasColumn：查询当前 schema 下某表是否存在某列
// 背景：把运行时探测收敛为一个类型化的能力查询，调用方只拿布尔分支，不碰目录表
func (s *Store) HasColumn(ctx context.Context, table, column string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SourceFile：抓取/上传登记表 _pl_source_files 的一行
type SourceFile struct {
	Jurisdiction string
	SourceURL    string
	ObjectName   string
	SHA256       string
	Bytes        int64
	Uploaded     bool
}

// RegisterSourceFile：按对象名 UPSERT 登记一条抓取结果
func (s *Store) RegisterSourceFile(ctx context.Context, f SourceFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _pl_source_files(jurisdiction, source_url, object_name, sha256, bytes, uploaded)
		 VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (object_name) DO UPDATE SET
		   jurisdiction = EXCLUDED.jurisdiction,
		   source_url = EXCLUDED.source_url,
		   sha256 = EXCLUDED.sha256,
		   bytes = EXCLUDED.bytes,
		   uploaded = EXCLUDED.uploaded,
		   fetched_at = now()`,
		f.Jurisdiction, f.SourceURL, f.ObjectName, f.SHA256, f.Bytes, f.Uploaded)
	return err
}

// SourceFiles：读出全部登记行，供对象存储核对使用
func (s *Store) SourceFiles(ctx context.Context) ([]SourceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction, source_url, object_name, sha256, bytes, uploaded
		 FROM _pl_source_files ORDER BY object_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceFile
	for rows.Next() {
		var f SourceFile
		if err := rows.Scan(&f.Jurisdiction, &f.SourceURL, &f.ObjectName, &f.SHA256, &f.Bytes, &f.Uploaded); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// TrainingRun：批量训练启动器记录的一次作业结果
type TrainingRun struct {
	ID           string
	Jurisdiction string
	ModelConfig  string
	StartedAt    time.Time
	FinishedAt   time.Time
	ExitCode     int
	Status       string
	LogTail      string
}

// RecordTrainingRun：写入 _pl_training_runs 一行
func (s *Store) RecordTrainingRun(ctx context.Context, r TrainingRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _pl_training_runs(id, jurisdiction, model_config, started_at, finished_at, exit_code, status, log_tail)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.Jurisdiction, r.ModelConfig, r.StartedAt, r.FinishedAt, r.ExitCode, r.Status, r.LogTail)
	return err
}
