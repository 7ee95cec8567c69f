package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"ridematch/internal/avatar"
	"ridematch/internal/database"
	"ridematch/internal/models"
	"ridematch/pkg/logger"

	"github.com/google/uuid"
)

type AvatarService struct {
	users     database.UserRepository
	store     avatar.Store
	urlPrefix string
	maxBytes  int64
}

// NewAvatarService stores images in store and publishes them as
// urlPrefix + "/" + name.
func NewAvatarService(users database.UserRepository, store avatar.Store, urlPrefix string, maxBytes int64) *AvatarService {
	return &AvatarService{
		users:     users,
		store:     store,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}
}

// MaxEncodedBytes bounds an upload body: the base64 size of the largest
// accepted image plus room for a data URL prefix and the JSON wrapper.
func (s *AvatarService) MaxEncodedBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(int(s.maxBytes))) + 1024
}

func (s *AvatarService) Upload(ctx context.Context, userID int, encoded string) (*models.User, error) {
	if strings.HasPrefix(encoded, "data:") {
		_, rest, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URL", models.ErrInvalidInput)
		}
		encoded = rest
	}
	encoded = strings.TrimSpace(encoded)
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > s.maxBytes+2 {
		return nil, fmt.Errorf("%w: avatar exceeds %d bytes", models.ErrInvalidInput, s.maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: avatar is not valid base64", models.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: avatar is empty", models.ErrInvalidInput)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: avatar exceeds %d bytes", models.ErrInvalidInput, s.maxBytes)
	}
	contentType, ext, ok := avatar.Detect(data)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image type %s", models.ErrInvalidInput, contentType)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("avatar_%d_%s%s", userID, uuid.NewString()[:8], ext)
	if _, err := s.store.Put(ctx, name, data, contentType); err != nil {
		return nil, err
	}
	url := s.urlPrefix + "/" + name
	updated, err := s.users.SetAvatarURL(ctx, userID, &url)
	if err != nil {
		if derr := s.store.Delete(ctx, name); derr != nil {
			logger.Warn().Err(derr).Str("name", name).Msg("failed to remove orphaned avatar")
		}
		return nil, err
	}

	s.removeLocal(ctx, user.AvatarURL)
	logger.Info().Int("user_id", userID).Str("avatar", name).Int("bytes", len(data)).Msg("avatar uploaded")
	return updated, nil
}

func (s *AvatarService) Delete(ctx context.Context, userID int) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.AvatarURL == nil {
		return fmt.Errorf("%w: user %d has no avatar", models.ErrNotFound, userID)
	}
	if _, err := s.users.SetAvatarURL(ctx, userID, nil); err != nil {
		return err
	}
	s.removeLocal(ctx, user.AvatarURL)
	logger.Info().Int("user_id", userID).Msg("avatar deleted")
	return nil
}

// removeLocal deletes the file behind url when it points into this store.
// URLs set elsewhere are left alone.
func (s *AvatarService) removeLocal(ctx context.Context, url *string) {
	if url == nil {
		return
	}
	name, ok := strings.CutPrefix(*url, s.urlPrefix+"/")
	if !ok || !avatar.ValidName(name) {
		return
	}
	if err := s.store.Delete(ctx, name); err != nil {
		logger.Warn().Err(err).Str("name", name).Msg("failed to remove previous avatar")
	}
}
