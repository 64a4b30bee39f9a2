// Package snapshot implements the backup/restore bridge between the local
// durable tables and an external blob sink. The sink holds serialized copies
// only; the local store stays authoritative, and a table's pointer is updated
// strictly after its upload has been confirmed.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/repomanager"
)

// Logical table names as recorded in snapshot pointers and object labels.
const (
	TableRegistry   = "registry"
	TableGrants     = "grants"
	TablePurgeQueue = "purgeQueue"
)

// Tables lists every snapshottable table. Restore follows this order:
// grants reference registry rows, so the registry has to land first.
var Tables = []string{TableRegistry, TableGrants, TablePurgeQueue}

// BlobSink is the remote durable object store used for disaster recovery.
type BlobSink interface {
	Upload(ctx context.Context, label string, data []byte) (remoteKey string, err error)
	// Download returns common.ErrorNotFound when the key names no object.
	Download(ctx context.Context, remoteKey string) ([]byte, error)
}

type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	sink   BlobSink
	logger logging.Logger
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, sink BlobSink, logger logging.Logger) *Service {
	return &Service{
		db:     db,
		repos:  repos,
		sink:   sink,
		logger: logger.With("module", "snapshot"),
	}
}

// Snapshot serializes one table and uploads it. The pointer is written only
// on confirmed upload; on failure the previous pointer stays untouched and
// local durable state is unaffected either way.
func (s *Service) Snapshot(ctx context.Context, tableName string) error {
	data, err := s.export(ctx, tableName)
	if err != nil {
		return fmt.Errorf("export %s: %w", tableName, err)
	}

	key, err := s.sink.Upload(ctx, tableName, data)
	if err != nil {
		return fmt.Errorf("upload %s: %w", tableName, err)
	}

	pointer := &models.SnapshotPointer{TableName: tableName, RemoteKey: key, UploadedAt: time.Now().UTC()}
	if err := s.repos.Snapshots(s.db).Upsert(ctx, pointer); err != nil {
		return fmt.Errorf("record pointer for %s: %w", tableName, err)
	}

	s.logger.Info(ctx, "table snapshotted", "table", tableName, "key", key, "bytes", len(data))
	return nil
}

// SnapshotAll uploads every table, continuing past per-table failures.
func (s *Service) SnapshotAll(ctx context.Context) error {
	var errs []error
	for _, table := range Tables {
		if err := s.Snapshot(ctx, table); err != nil {
			s.logger.Error(ctx, "snapshot failed", "table", table, "error", err.Error())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore downloads a table's last snapshot and installs it as the new
// canonical local copy, replacing prior contents in one transaction.
// common.ErrorNotFound means no pointer was ever recorded;
// common.ErrCorruptSnapshot means the object exists but does not parse.
func (s *Service) Restore(ctx context.Context, tableName string) error {
	pointer, err := s.repos.Snapshots(s.db).Get(ctx, tableName)
	if err != nil {
		return err
	}

	data, err := s.sink.Download(ctx, pointer.RemoteKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", tableName, err)
	}

	if err := s.install(ctx, tableName, data); err != nil {
		return err
	}

	s.logger.Info(ctx, "table restored", "table", tableName, "key", pointer.RemoteKey)
	return nil
}

// RestoreAll attempts every table independently. A table that fails to
// restore keeps whatever is already present locally; the returned count says
// how many tables were actually installed.
func (s *Service) RestoreAll(ctx context.Context) int {
	var restored int
	for _, table := range Tables {
		if err := s.Restore(ctx, table); err != nil {
			s.logger.Warn(ctx, "restore skipped", "table", table, "error", err.Error())
			continue
		}
		restored++
	}
	return restored
}

func (s *Service) export(ctx context.Context, tableName string) ([]byte, error) {
	switch tableName {
	case TableRegistry:
		records, err := s.repos.Payloads(s.db).SelectAll(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)
	case TableGrants:
		records, err := s.repos.Grants(s.db).SelectAll(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)
	case TablePurgeQueue:
		records, err := s.repos.PurgeQueue(s.db).SelectAll(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)
	default:
		return nil, fmt.Errorf("%w: unknown table %q", common.ErrValidation, tableName)
	}
}

func (s *Service) install(ctx context.Context, tableName string, data []byte) error {
	switch tableName {
	case TableRegistry:
		var records []*models.Payload
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%w: table %s: %v", common.ErrCorruptSnapshot, tableName, err)
		}
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.repos.Payloads(tx).ReplaceAll(ctx, records)
		})
	case TableGrants:
		var records []*models.AccessGrant
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%w: table %s: %v", common.ErrCorruptSnapshot, tableName, err)
		}
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.repos.Grants(tx).ReplaceAll(ctx, records)
		})
	case TablePurgeQueue:
		var records []*models.PurgeTask
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%w: table %s: %v", common.ErrCorruptSnapshot, tableName, err)
		}
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.repos.PurgeQueue(tx).ReplaceAll(ctx, records)
		})
	default:
		return fmt.Errorf("%w: unknown table %q", common.ErrValidation, tableName)
	}
}
