// Package reliability provides database backup, cloud replication, and
// scheduled maintenance for the risk databases.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aristath/riskcore/internal/database"
	"github.com/rs/zerolog"
)

// DailyBackupRetention is how many daily backup directories are kept.
const DailyBackupRetention = 30

// BackupService manages local database backups using SQLite VACUUM INTO.
type BackupService struct {
	databases map[string]*database.DB
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(databases map[string]*database.DB, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// GetDatabaseNames returns the managed database names sorted for stable
// iteration. includeJobs controls whether the ephemeral jobs database is
// backed up as well.
func (s *BackupService) GetDatabaseNames(includeJobs bool) []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		if name == "jobs" && !includeJobs {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackupDatabase performs backup of a single database using SQLite's VACUUM INTO
func (s *BackupService) BackupDatabase(dbName, backupPath string) error {
	db, ok := s.databases[dbName]
	if !ok {
		return fmt.Errorf("database %s not found", dbName)
	}

	s.log.Debug().
		Str("database", dbName).
		Str("backup_path", backupPath).
		Msg("Backing up database")

	// VACUUM INTO produces an atomic copy without WAL files
	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	sizeMB := float64(info.Size()) / 1024 / 1024
	s.log.Debug().
		Str("database", dbName).
		Float64("size_mb", sizeMB).
		Msg("Backup created")

	return nil
}

// VerifyBackup opens a backup file and runs an integrity check.
func (s *BackupService) VerifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// DailyBackup backs up the persistent databases into a dated directory,
// verifies each copy, and rotates old directories. A corrupted copy is
// deleted and the remaining databases still back up.
func (s *BackupService) DailyBackup() error {
	s.log.Info().Msg("Starting daily backup")
	startTime := time.Now()

	date := time.Now().Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily", date)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	for _, dbName := range s.GetDatabaseNames(false) {
		backupPath := filepath.Join(dailyDir, dbName+".db")

		if err := s.BackupDatabase(dbName, backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Failed to backup database")
			continue
		}

		if err := s.VerifyBackup(backupPath); err != nil {
			s.log.Error().
				Str("database", dbName).
				Err(err).
				Msg("Backup verification failed")
			os.Remove(backupPath)
		}
	}

	if err := s.rotateDailyBackups(); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate daily backups")
		// Don't fail - backup succeeded
	}

	duration := time.Since(startTime)
	s.log.Info().
		Dur("duration_ms", duration).
		Str("backup_dir", dailyDir).
		Msg("Daily backup completed successfully")

	return nil
}

// rotateDailyBackups removes dated directories beyond the retention window.
func (s *BackupService) rotateDailyBackups() error {
	dailyRoot := filepath.Join(s.backupDir, "daily")
	entries, err := os.ReadDir(dailyRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if entry.IsDir() {
			dates = append(dates, entry.Name())
		}
	}
	if len(dates) <= DailyBackupRetention {
		return nil
	}

	// Directory names are YYYY-MM-DD, lexical order is date order
	sort.Strings(dates)
	for _, date := range dates[:len(dates)-DailyBackupRetention] {
		path := filepath.Join(dailyRoot, date)
		if err := os.RemoveAll(path); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Failed to remove old backup")
			continue
		}
		s.log.Info().Str("date", date).Msg("Removed old daily backup")
	}
	return nil
}
