package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	backupPrefix    = "fx-backup-"
	backupTimeFmt   = "2006-01-02-150405"
	minBackupsKept  = 3
	retentionDays   = 14
	stagingDirName  = "backup-staging"
	metadataVersion = "1.0.0"
)

// BackupMetadata travels inside every archive.
type BackupMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one archived file.
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes one remote archive.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
}

// BackupService archives the data directory's database files to the
// configured bucket.
type BackupService struct {
	s3      *S3Client
	dataDir string
	log     zerolog.Logger
}

// NewBackupService wires the service.
func NewBackupService(s3 *S3Client, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		s3:      s3,
		dataDir: dataDir,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup stages the database files, writes a metadata
// manifest, archives everything as tar.gz and uploads it.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("Starting backup")

	stagingDir := filepath.Join(s.dataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbFiles, err := filepath.Glob(filepath.Join(s.dataDir, "*.db"))
	if err != nil {
		return fmt.Errorf("failed to glob database files: %w", err)
	}
	if len(dbFiles) == 0 {
		return fmt.Errorf("no database files found in %s", s.dataDir)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   metadataVersion,
		Files:     make([]FileMetadata, 0, len(dbFiles)),
	}
	staged := make([]string, 0, len(dbFiles)+1)

	for _, src := range dbFiles {
		name := filepath.Base(src)
		dst := filepath.Join(stagingDir, name)
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		info, err := os.Stat(dst)
		if err != nil {
			return fmt.Errorf("failed to stat staged %s: %w", name, err)
		}
		checksum, err := checksumFile(dst)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", name, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{
			Filename:  name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		staged = append(staged, name)
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	staged = append(staged, "backup-metadata.json")

	archiveName := backupPrefix + time.Now().Format(backupTimeFmt) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, staged); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.s3.Upload(ctx, archiveName, archiveFile); err != nil {
		return err
	}

	info, _ := os.Stat(archivePath)
	var sizeKB int64
	if info != nil {
		sizeKB = info.Size() / 1024
	}
	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_kb", sizeKB).
		Msg("Backup completed")
	return nil
}

// ListBackups returns remote archives, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.s3.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, backupPrefix), ".tar.gz")
		ts, err := time.Parse(backupTimeFmt, stamp)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Unparsable backup timestamp, skipping")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{Filename: filename, Timestamp: ts, SizeBytes: size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives past the retention window, always
// keeping the newest few regardless of age.
func (s *BackupService) RotateOldBackups(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsKept {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsKept || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.s3.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", b.Filename).Msg("Deleted old backup")
		deleted++
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("Backup rotation completed")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, f)
	return err
}
