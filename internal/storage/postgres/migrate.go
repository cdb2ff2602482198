package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplyMigrationsFromDir 以“按文件名排序”的方式执行 SQL 迁移。
// 说明：为了减少依赖，使用最朴素的 SQL 文件执行方式；后续可切换 goose/atlas。
func ApplyMigrationsFromDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return err
		}
	}
	return nil
}
