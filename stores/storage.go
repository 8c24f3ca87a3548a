package stores

import (
	"context"
	"fmt"

	"github.com/Animeshkr9044/pair-programming-prototype/config"
	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/stores/aws"
	"github.com/Animeshkr9044/pair-programming-prototype/stores/filesystem"
	"github.com/Animeshkr9044/pair-programming-prototype/stores/memory"
	"github.com/Animeshkr9044/pair-programming-prototype/stores/sqlite"
	"github.com/sirupsen/logrus"
)

// Open builds the store selected by cfg.Type.
func Open(ctx context.Context, cfg config.Storage) (core.RoomStore, error) {
	switch cfg.Type {
	case "filesystem":
		return filesystem.NewRoomStore(cfg.LocalPath)
	case "sqlite":
		return sqlite.NewRoomStore(cfg.DataSourceName)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
		return aws.NewRoomStore(ctx, cfg.S3Bucket)
	case "memory", "":
		return memory.NewRoomStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// GetStore is Open that never fails: when the backend cannot be opened the
// error is logged and a store answering ErrStoreUnavailable is returned, so
// real-time relay keeps working without persistence.
func GetStore(ctx context.Context, cfg config.Storage) core.RoomStore {
	storageField := logrus.Fields{"storageType": cfg.Type}
	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
	case "s3":
		storageField["bucketName"] = cfg.S3Bucket
	default:
		storageField["storageType"] = "in-memory"
	}

	store, err := Open(ctx, cfg)
	if err != nil {
		logrus.WithFields(storageField).WithError(err).Warn("Room store unavailable, persistence and late-join sync are disabled")
		return Unavailable(err)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store
}

type unavailableStore struct {
	cause error
}

// Unavailable returns a store whose every call fails with core.ErrStoreUnavailable.
func Unavailable(cause error) core.RoomStore {
	return unavailableStore{cause: cause}
}

func (s unavailableStore) err() error {
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, s.cause)
}

func (s unavailableStore) CreateRoom(context.Context) (string, error) { return "", s.err() }

func (s unavailableStore) GetContent(context.Context, string) (string, error) { return "", s.err() }

func (s unavailableStore) SetContent(context.Context, string, string) error { return s.err() }

func (s unavailableStore) Close() error { return nil }
