package models

import "time"

// SnapshotPointer references the last confirmed upload of one logical table
// to the blob sink. The pointer is written only after the upload succeeds, so
// a stored RemoteKey always names a complete object.
type SnapshotPointer struct {
	TableName  string    `json:"tableName"`
	RemoteKey  string    `json:"remoteKey"`
	UploadedAt time.Time `json:"uploadedAt"`
}
