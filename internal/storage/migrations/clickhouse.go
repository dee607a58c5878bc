package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	chstore "evalys-gmpc/internal/storage/clickhouse"
)

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// RunClickhouseMigrations creates the target database if needed and applies
// the audit schema. The returned connection is bound to that database and is
// meant to be kept for the store.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	// The target database may not exist yet, so the CREATE DATABASE runs on
	// a connection without one selected.
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dbName, err)
	}

	files, err := fs.Glob(clickhouseFS, "clickhouse/*.sql")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("list clickhouse migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(clickhouseFS, file)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read %s: %w", file, err)
		}

		// The driver executes one statement per Exec.
		stmts, err := splitStatements(string(data))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("split %s: %w", file, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply %s: %w", file, err)
			}
		}
	}

	return conn, nil
}

// splitStatements cuts a migration file into statements on semicolons,
// skipping semicolons inside single-quoted literals and -- comments. An
// unterminated literal is reported rather than silently mis-split.
func splitStatements(input string) ([]string, error) {
	var (
		stmts     []string
		current   strings.Builder
		inLiteral bool
	)

	for _, line := range strings.Split(input, "\n") {
		if !inLiteral && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'':
				if inLiteral && i+1 < len(line) && line[i+1] == '\'' {
					current.WriteString("''")
					i++
					continue
				}
				inLiteral = !inLiteral
				current.WriteByte(ch)
			case ch == ';' && !inLiteral:
				if s := strings.TrimSpace(current.String()); s != "" {
					stmts = append(stmts, s)
				}
				current.Reset()
			default:
				current.WriteByte(ch)
			}
		}
		current.WriteByte('\n')
	}

	if inLiteral {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
