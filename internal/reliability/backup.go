// Package reliability provides backup and database maintenance services.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/database"
)

// BackupMetadata describes a backup archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database in the backup
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService snapshots databases into gzipped tar archives and optionally
// uploads them to S3. Snapshots use VACUUM INTO so a consistent copy is taken
// without blocking writers.
type BackupService struct {
	databases map[string]*database.DB
	dataDir   string
	s3Bucket  string // Empty disables upload
	s3Prefix  string
	log       zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(
	databases map[string]*database.DB,
	dataDir, s3Bucket, s3Prefix string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		databases: databases,
		dataDir:   dataDir,
		s3Bucket:  s3Bucket,
		s3Prefix:  s3Prefix,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Run creates a backup archive and uploads it when a bucket is configured
func (s *BackupService) Run(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Databases: make([]DatabaseMetadata, 0, len(s.databases)),
	}

	for name, db := range s.databases {
		snapshotPath := filepath.Join(stagingDir, name+".db")

		s.log.Debug().Str("database", name).Msg("Snapshotting database")

		if _, err := db.Conn().ExecContext(ctx,
			fmt.Sprintf("VACUUM INTO '%s'", snapshotPath)); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", name, err)
		}

		info, err := os.Stat(snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}

		checksum, err := fileChecksum(snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s snapshot: %w", name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "metadata.json")
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath, metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}

	backupDir := filepath.Join(s.dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	archiveName := fmt.Sprintf("folio-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	archivePath := filepath.Join(backupDir, archiveName)

	if err := createArchive(stagingDir, archivePath); err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}

	if s.s3Bucket != "" {
		if err := s.upload(ctx, archivePath, archiveName); err != nil {
			return fmt.Errorf("failed to upload backup: %w", err)
		}
	}

	s.log.Info().
		Str("archive", archiveName).
		Dur("elapsed", time.Since(startTime)).
		Bool("uploaded", s.s3Bucket != "").
		Msg("Backup completed")

	return nil
}

// upload sends the archive to the configured S3 bucket
func (s *BackupService) upload(ctx context.Context, archivePath, archiveName string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	uploader := manager.NewUploader(s3.NewFromConfig(cfg))
	key := filepath.ToSlash(filepath.Join(s.s3Prefix, archiveName))

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.s3Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", s.s3Bucket, key, err)
	}

	s.log.Info().Str("bucket", s.s3Bucket).Str("key", key).Msg("Backup uploaded")

	return nil
}

// PruneOld deletes local backup archives older than maxAge
func (s *BackupService) PruneOld(maxAge time.Duration) error {
	backupDir := filepath.Join(s.dataDir, "backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(backupDir, entry.Name())); err != nil {
				s.log.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to prune backup")
				continue
			}
			pruned++
		}
	}

	if pruned > 0 {
		s.log.Info().Int("pruned", pruned).Msg("Pruned old backups")
	}

	return nil
}

// fileChecksum computes the SHA-256 checksum of a file
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// createArchive packs every file in srcDir into a gzipped tar archive
func createArchive(srcDir, dstPath string) error {
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = entry.Name()

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}

	return nil
}
