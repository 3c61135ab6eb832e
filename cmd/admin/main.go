package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/abdala981br/automacao/internal/config"
	"github.com/abdala981br/automacao/internal/database"
	"github.com/abdala981br/automacao/internal/domain"
)

func main() {
	var (
		migrate    = flag.Bool("migrate", false, "执行数据库迁移")
		identity   = flag.String("identity", "", "打印该匿名身份的投递统计")
		driver     = flag.String("db-driver", "", "数据库驱动 postgres|sqlite（可选，默认读 DATABASE_DRIVER）")
		sqlitePath = flag.String("db-sqlite-path", "", "SQLite 文件路径（可选，默认读 DATABASE_SQLITE_PATH）")
		dbHost     = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort     = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName     = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser     = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass     = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode    = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	id := strings.TrimSpace(*identity)
	if !*migrate && id == "" {
		log.Fatal("nothing to do: pass --migrate and/or --identity")
	}

	dbCfg, err := loadDatabaseConfig(*driver, *sqlitePath, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if *migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("auto migrate: %v", err)
		}
		fmt.Println("数据库迁移完成")
	}

	if id == "" {
		return
	}

	store := database.NewStore(db, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx := context.Background()

	exists, err := store.UserExists(ctx, id)
	if err != nil {
		log.Fatalf("query identity: %v", err)
	}
	if !exists {
		log.Fatalf("identity %q not found", id)
	}

	apps, err := store.ListApplications(ctx, id)
	if err != nil {
		log.Fatalf("list applications: %v", err)
	}
	counts := domain.Summarize(apps)

	fmt.Printf("身份: %s\n", id)
	fmt.Printf("总计: %d\n", counts.Total)
	fmt.Printf("待处理: %d\n", counts.PendingBot)
	fmt.Printf("已投递: %d\n", counts.Applied)
	fmt.Printf("待回答: %d\n", counts.NeedsInput)
	fmt.Printf("失败: %d\n", counts.Failed)
}

func loadDatabaseConfig(driver, sqlitePath, host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(driver) == "" {
		driver = os.Getenv("DATABASE_DRIVER")
	}
	if strings.TrimSpace(driver) == "" {
		driver = "postgres"
	}

	if driver == "sqlite" {
		if strings.TrimSpace(sqlitePath) == "" {
			sqlitePath = os.Getenv("DATABASE_SQLITE_PATH")
		}
		if strings.TrimSpace(sqlitePath) == "" {
			return config.DatabaseConfig{}, errors.New("sqlite path is required (DATABASE_SQLITE_PATH)")
		}
		return config.DatabaseConfig{Driver: driver, SQLitePath: sqlitePath}, nil
	}
	if driver != "postgres" {
		return config.DatabaseConfig{}, fmt.Errorf("unsupported database driver %q", driver)
	}

	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Driver:   driver,
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
