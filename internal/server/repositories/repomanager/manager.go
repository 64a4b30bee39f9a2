package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/grants"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/payloads"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/purgequeue"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/snapshots"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Payloads(db dbx.DBTX) payloads.Repository
	Grants(db dbx.DBTX) grants.Repository
	PurgeQueue(db dbx.DBTX) purgequeue.Repository
	Snapshots(db dbx.DBTX) snapshots.Repository
}
