// Package gcs stores ledger snapshot backups in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/smartfinance/internal/store"
)

// uploadTimeout bounds a single snapshot upload.
const uploadTimeout = 2 * time.Minute

// SnapshotStore reads and writes snapshot objects.
type SnapshotStore struct {
	client *storage.Client
}

// NewSnapshotStore creates a storage client using Application Default Credentials.
func NewSnapshotStore(ctx context.Context) (*SnapshotStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewSnapshotStore: create storage client: %w", err)
	}
	return NewSnapshotStoreWithClient(client), nil
}

// NewSnapshotStoreWithClient wraps an existing client.
func NewSnapshotStoreWithClient(client *storage.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Close releases the storage client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

// SaveSnapshot uploads snap for userID to bucket and returns its gs:// URI.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, bucket, userID string, snap store.Snapshot, now time.Time) (string, error) {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("SaveSnapshot: %w", err)
	}
	object := ObjectName(userID, now)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("SaveSnapshot: write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("SaveSnapshot: finalize upload: %w", err)
	}
	return URI(bucket, object), nil
}

// LoadSnapshot downloads and decodes the snapshot at a gs:// URI.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, uri string) (store.Snapshot, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("LoadSnapshot: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("LoadSnapshot: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("LoadSnapshot: reading bytes: %w", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("LoadSnapshot: %w", err)
	}
	return snap, nil
}

// ObjectName is the object path of a backup: ledgers/<user>/<timestamp>.json.
func ObjectName(userID string, now time.Time) string {
	return path.Join("ledgers", userID, now.UTC().Format("20060102T150405.000Z")+".json")
}

// URI builds a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// EncodeSnapshot renders snap in the local store's snapshot format.
func EncodeSnapshot(snap store.Snapshot) ([]byte, error) {
	if snap.Accounts == nil {
		snap.Accounts = []store.AccountRecord{}
	}
	if snap.Transactions == nil {
		snap.Transactions = []store.TransactionRecord{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot and rejects records without an id.
func DecodeSnapshot(data []byte) (store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	for i, a := range snap.Accounts {
		if a.ID == "" {
			return store.Snapshot{}, fmt.Errorf("decoding snapshot: account %d has no id", i)
		}
	}
	for i, t := range snap.Transactions {
		if t.ID == "" {
			return store.Snapshot{}, fmt.Errorf("decoding snapshot: transaction %d has no id", i)
		}
	}
	return snap, nil
}
