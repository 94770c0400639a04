package matrix

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// SyncState stores key/value pairs per Matrix user. The SQLite store
// implements it.
type SyncState interface {
	SaveSyncValue(ctx context.Context, userID, key, value string) error
	LoadSyncValue(ctx context.Context, userID, key string) (string, error)
}

var _ mautrix.SyncStore = (*DBSyncStore)(nil)

// DBSyncStore keeps the filter ID and next_batch token in SyncState so a
// restarted bot does not answer old messages again.
type DBSyncStore struct {
	state SyncState
}

func newDBSyncStore(state SyncState) *DBSyncStore {
	return &DBSyncStore{state: state}
}

func (s *DBSyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.state.SaveSyncValue(ctx, userID.String(), "filter_id", filterID)
}

func (s *DBSyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.LoadSyncValue(ctx, userID.String(), "filter_id")
}

func (s *DBSyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.state.SaveSyncValue(ctx, userID.String(), "next_batch", nextBatchToken)
}

func (s *DBSyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.LoadSyncValue(ctx, userID.String(), "next_batch")
}
