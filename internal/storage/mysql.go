package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/contextutil"
	"github.com/blueclef/receiptify/internal/identity"
	"github.com/blueclef/receiptify/internal/receipt"
	"github.com/blueclef/receiptify/logging"
	"github.com/go-sql-driver/mysql"
)

// --- INIT START --- //

func Init() (*sql.DB, error) {
	var db *sql.DB
	var err error
	var dbname string

	username := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASS")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	dbname = os.Getenv("DB_NAME")
	fullDsn := os.Getenv("FULL_DSN")

	if dbname == "" {
		dbname = "receiptify"
	}

	var adminDsn string
	if fullDsn != "" {
		parts := strings.Split(fullDsn, "/")
		adminDsn = strings.Join(parts[:len(parts)-1], "/") + "/"
	} else {
		if username == "" || password == "" || host == "" || port == "" {
			return nil, fmt.Errorf("missing required DB environment variables")
		}
		adminDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/?parseTime=true", username, password, host, port)
	}

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", adminDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %v", err)
	}
	connected := false
	for i := 0; i < 15; i++ {
		if err := adminDb.Ping(); err == nil {
			connected = true
			break
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/15)", i+1)
		time.Sleep(3 * time.Second)
	}
	if !connected {
		return nil, fmt.Errorf("database unreachable after multiple attempts")
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRow(checkDbnameExistQuery, dbname).Scan(&dbnameExistence)

	if err == sql.ErrNoRows {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", dbname)
		if _, err := adminDb.Exec(createDbSql); err != nil {
			adminDb.Close()
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	} else if err != nil {
		adminDb.Close()
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	adminDb.Close()

	var finalDsn string
	if fullDsn != "" {
		finalDsn = fullDsn
	} else {
		finalDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", username, password, host, port, dbname)
	}

	logging.Logger.Info("Connecting to database...")
	db, err = sql.Open("mysql", finalDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %v", err)
	}

	logging.Logger.Info("Connected to database successfully")
	logging.Logger.Info("Running migrations...")

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	migrationFiles, err := getMigrationFiles("db/migrations")
	if err != nil {
		return fmt.Errorf("failed to get migration files: %v", err)
	}

	lastAppliedMigration, err := getLastAppliedMigration(db)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %v", err)
	}

	for _, name := range filterNewMigrations(migrationFiles, lastAppliedMigration) {
		content, err := os.ReadFile(filepath.Join("db/migrations", name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %v", name, err)
		}
		if err := applyMigration(db, name, string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %v", name, err)
		}
		logging.Logger.Infof("Applied migration: %s", name)
	}
	return nil
}

func getMigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func getLastAppliedMigration(db *sql.DB) (string, error) {
	createTable := `CREATE TABLE IF NOT EXISTS schema_migration (
		name VARCHAR(255) PRIMARY KEY,
		applied_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(createTable); err != nil {
		return "", err
	}

	var last string
	err := db.QueryRow("SELECT name FROM schema_migration ORDER BY name DESC LIMIT 1").Scan(&last)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return last, nil
}

func filterNewMigrations(all []string, lastApplied string) []string {
	var out []string
	for _, name := range all {
		if name > lastApplied {
			out = append(out, name)
		}
	}
	return out
}

func applyMigration(db *sql.DB, name, sqlContent string) error {
	for _, stmt := range strings.Split(sqlContent, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	_, err := db.Exec("INSERT INTO schema_migration (name, applied_at) VALUES (?, ?);", name, time.Now().UTC())
	return err
}

// --- INIT END --- //

type MySQLStorage struct {
	db *sql.DB
}

func NewMySQLStorage(db *sql.DB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

func (mySql *MySQLStorage) GetStorageType() string {
	return "mysql"
}

func (mySql *MySQLStorage) SaveIdentity(ctx context.Context, ident identity.Identity) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO identity (id, token, created_at) VALUES (?, ?, ?);"
	_, err := mySql.db.Exec(query, ident.ID, ident.Token, ident.CreatedAt)
	if err != nil {
		if mysqlErr, ok := err.(*mysql.MySQLError); ok {
			if mysqlErr.Number == 1062 {
				return appErrors.ErrorResponse{
					Code:    appErrors.ErrConflict,
					Message: "The identity already exists.",
				}
			}
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to save identity in Storage.SaveIdentity() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to create identity, try again later.",
		}
	}
	return nil
}

func (mySql *MySQLStorage) GetIdentityByToken(ctx context.Context, token string) (identity.Identity, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, token, created_at FROM identity WHERE token = ?;"

	var ident identity.Identity
	err := mySql.db.QueryRow(query, token).Scan(&ident.ID, &ident.Token, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrAuth,
				Message: "Unknown identity token.",
			}
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get identity in Storage.GetIdentityByToken() function | Error: %v", traceID, err)
		return identity.Identity{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to check identity, try again later.",
		}
	}
	return ident, nil
}

func (mySql *MySQLStorage) DeleteIdentity(ctx context.Context, identityID string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	tx, err := mySql.db.Begin()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to begin transaction in Storage.DeleteIdentity() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to remove identity, try again later.",
		}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM expense_snapshot WHERE identity_id = ?;", identityID); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete snapshot in Storage.DeleteIdentity() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to remove identity, try again later.",
		}
	}

	result, err := tx.Exec("DELETE FROM identity WHERE id = ?;", identityID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete identity in Storage.DeleteIdentity() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to remove identity, try again later.",
		}
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "Identity not found.",
		}
	}

	if err := tx.Commit(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to commit in Storage.DeleteIdentity() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to remove identity, try again later.",
		}
	}
	return nil
}

// LoadRecords reads the persisted snapshot for one identity. A missing row
// is an empty collection, not an error.
func (mySql *MySQLStorage) LoadRecords(ctx context.Context, identityID string) ([]receipt.ExpenseRecord, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT payload FROM expense_snapshot WHERE identity_id = ?;"

	var payload []byte
	err := mySql.db.QueryRow(query, identityID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []receipt.ExpenseRecord{}, nil
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to load snapshot in Storage.LoadRecords() function | Error: %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to load expenses, try again later.",
		}
	}

	var records []receipt.ExpenseRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | corrupt snapshot for identity %s in Storage.LoadRecords() function | Error: %v", traceID, identityID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to load expenses, stored data is unreadable.",
		}
	}
	return records, nil
}

// SaveRecords overwrites the identity's snapshot with the full collection.
// Last writer wins.
func (mySql *MySQLStorage) SaveRecords(ctx context.Context, identityID string, records []receipt.ExpenseRecord) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	if records == nil {
		records = []receipt.ExpenseRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to encode snapshot in Storage.SaveRecords() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save expenses, try again later.",
		}
	}

	query := `INSERT INTO expense_snapshot (identity_id, payload, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at);`
	_, err = mySql.db.Exec(query, identityID, payload, time.Now().UTC())
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save snapshot in Storage.SaveRecords() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save expenses, try again later.",
		}
	}
	return nil
}
