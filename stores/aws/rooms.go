package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "rooms"

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type roomStore struct {
	client objectAPI
	bucket string
	newID  func() string
}

// NewRoomStore stores one object per room under rooms/ in bucketName,
// using the default AWS credential chain.
func NewRoomStore(ctx context.Context, bucketName string) (core.RoomStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newRoomStore(s3.NewFromConfig(cfg), bucketName, core.NewRoomID), nil
}

func newRoomStore(client objectAPI, bucket string, newID func() string) *roomStore {
	return &roomStore{client: client, bucket: bucket, newID: newID}
}

func (s *roomStore) key(roomID string) (string, bool) {
	if roomID == "" || strings.Contains(roomID, "/") || roomID == "." || roomID == ".." {
		return "", false
	}
	return path.Join(keyPrefix, roomID), true
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *roomStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateRoom checks for an existing object before writing. S3 has no
// conditional put in this SDK version, so two creators racing on the same
// random id could both succeed.
func (s *roomStore) CreateRoom(ctx context.Context) (string, error) {
	id := s.newID()
	key, ok := s.key(id)
	if !ok {
		return "", fmt.Errorf("create room: invalid generated id %q", id)
	}
	log := logrus.WithFields(logrus.Fields{"room_id": id, "bucket": s.bucket})

	found, err := s.exists(ctx, key)
	if err != nil {
		log.WithError(err).Error("Failed to check room object")
		return "", fmt.Errorf("create room: %w", err)
	}
	if found {
		log.Error("Generated room id already exists")
		return "", fmt.Errorf("create room %s: %w", id, core.ErrRoomIDCollision)
	}

	if err := s.put(ctx, key, ""); err != nil {
		log.WithError(err).Error("Failed to create room")
		return "", fmt.Errorf("create room: %w", err)
	}

	log.Info("Room created successfully")
	return id, nil
}

func (s *roomStore) GetContent(ctx context.Context, roomID string) (string, error) {
	key, ok := s.key(roomID)
	if !ok {
		return "", nil
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			logrus.WithField("room_id", roomID).Debug("Room not found, returning empty content")
			return "", nil
		}
		return "", fmt.Errorf("get content of room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read content of room %s: %w", roomID, err)
	}
	return string(data), nil
}

func (s *roomStore) SetContent(ctx context.Context, roomID, content string) error {
	key, ok := s.key(roomID)
	if !ok {
		return nil
	}
	log := logrus.WithFields(logrus.Fields{"room_id": roomID, "data_length": len(content)})

	found, err := s.exists(ctx, key)
	if err != nil {
		return fmt.Errorf("set content of room %s: %w", roomID, err)
	}
	if !found {
		log.Debug("Room not found, ignoring save")
		return nil
	}

	if err := s.put(ctx, key, content); err != nil {
		log.WithError(err).Error("Failed to save room content")
		return fmt.Errorf("set content of room %s: %w", roomID, err)
	}
	log.Debug("Room content saved")
	return nil
}

func (s *roomStore) put(ctx context.Context, key, content string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(content)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	return err
}

func (s *roomStore) Close() error { return nil }
