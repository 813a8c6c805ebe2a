// 包 utils：PostgreSQL 连接工具，统一环境变量读取与连接池配置
package utils

import (
	"database/sql"
	"errors"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// OpenPostgres：使用 DSN 打开连接并配置连接池参数
// 背景：保留直接传入 DSN 的能力，用于测试与手工注入场景
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// PostgresDSNFromEnv：从环境变量组装 DSN
// 背景：优先取完整的 DATABASE_URL；未配置时用 PG_* 逐项拼装。
// 两者都不可用（既无 DATABASE_URL，也无 PG_DB）视为配置错误，由调用方决定是否终止
// 约束：PG_SCHEMA 指定辖区 schema 时追加 search_path 运行时参数，工具层不再逐条限定表名
func PostgresDSNFromEnv() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}
	dbname := os.Getenv("PG_DB")
	if dbname == "" {
		return "", errors.New("no DATABASE_URL and no PG_DB")
	}
	host := os.Getenv("PG_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("PG_USER")
	if user == "" {
		user = "postgres"
	}
	pass := os.Getenv("PG_PASSWORD")
	ssl := os.Getenv("PG_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + dbname + "?sslmode=" + ssl
	if schema := os.Getenv("PG_SCHEMA"); schema != "" {
		dsn += "&search_path=" + schema
	}
	return dsn, nil
}

// OpenPostgresFromEnv：按环境变量打开数据库，连接池上限可调
// 约束：批处理工具串行访问数据库，默认连接数远小于在线服务
func OpenPostgresFromEnv() (*sql.DB, error) {
	dsn, err := PostgresDSNFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	maxOpen := 10
	maxIdle := 5
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxOpen = n
		}
	}
	if v := os.Getenv("PG_MAX_IDLE_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxIdle = n
		}
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return db, nil
}
