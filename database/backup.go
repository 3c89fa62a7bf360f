package database

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

const (
	defaultBackupName = "meteoam"
	backupTimeLayout  = "20060102_150405"
)

// BackupFile is a zipped copy of the database written by Backup.
type BackupFile struct {
	Path      string
	CreatedAt time.Time
}

// WithBackups sets where backups go and the name they start with. An empty
// dir means a "backups" directory next to the database file.
func WithBackups(dir, name string) Option {
	return func(d *Database) {
		d.backupDir = dir
		d.backupName = name
	}
}

func (d *Database) backupLocation() (dir, name string) {
	dir, name = d.backupDir, d.backupName
	if dir == "" {
		dir = filepath.Join(filepath.Dir(d.path), "backups")
	}
	if name == "" {
		name = defaultBackupName
	}
	return dir, name
}

func (d *Database) backupPattern() *regexp.Regexp {
	_, name := d.backupLocation()
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `_(\d{8}_\d{6})\.db\.zip$`)
}

// Backup writes <dir>/<name>_<timestamp>.db.zip holding a consistent copy
// of the database.
func (d *Database) Backup(ctx context.Context) error {
	dir, name := d.backupLocation()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s.db", name, time.Now().Format(backupTimeLayout))
	snapshot := filepath.Join(dir, base)
	if _, err := d.write.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("vacuuming database into '%s': %w", snapshot, err)
	}
	defer func() {
		if err := os.Remove(snapshot); err != nil {
			d.logger.Warn("could not remove uncompressed backup", slog.String("path", snapshot), slog.Any("error", err))
		}
	}()

	zipPath := snapshot + ".zip"
	if err := zipFile(snapshot, zipPath, filepath.Base(d.path)); err != nil {
		os.Remove(zipPath)
		return err
	}

	d.logger.Info("database backup complete", slog.String("filename", zipPath))
	return nil
}

func zipFile(src, dst, entry string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open database backup for compression: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("create zip header: %w", err)
	}
	header.Name = entry
	header.Method = zip.Deflate

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip file entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write database to zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip file: %w", err)
	}
	return out.Close()
}

// Backups lists the backups in the backup directory, oldest first. Files
// not named like a backup are ignored. A missing directory means none.
func (d *Database) Backups() ([]BackupFile, error) {
	dir, _ := d.backupLocation()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	re := d.backupPattern()
	var backups []BackupFile
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		t, err := time.ParseInLocation(backupTimeLayout, m[1], time.Local)
		if err != nil {
			continue
		}
		backups = append(backups, BackupFile{Path: filepath.Join(dir, e.Name()), CreatedAt: t})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})
	return backups, nil
}

// PurgeBackups removes backups older than retentionDays. Zero or less
// keeps everything.
func (d *Database) PurgeBackups(ctx context.Context, retentionDays int) error {
	if retentionDays < 1 {
		return nil
	}

	backups, err := d.Backups()
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, b := range backups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.CreatedAt.Before(cutoff) {
			break
		}
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("remove old backup '%s': %w", b.Path, err)
		}
		removed++
	}

	d.logger.Info("backup purge complete", slog.Int("removed", removed), slog.Int("kept", len(backups)-removed))
	return nil
}
