package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dishdash-auth/internal/domain"
	"github.com/dishdash-auth/internal/pkg/id"
	"github.com/dishdash-auth/internal/pkg/validate"
)

// allowedImageTypes lists the accepted image extensions and their MIME types.
var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
}

type Service interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error)
	UploadImage(ctx context.Context, userID string, input UploadInput) (*domain.Profile, error)
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Put(ctx context.Context, p *domain.Profile) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	profiles      profileStore
	objects       objectStore
	uploadTimeout time.Duration
	imageURLTTL   time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	ProfileRepo   profileStore
	ObjectStore   objectStore
	UploadTimeout time.Duration
	// ImageURLTTL is the lifetime of the presigned image_url handed to clients.
	ImageURLTTL time.Duration
	Now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		profiles:      deps.ProfileRepo,
		objects:       deps.ObjectStore,
		uploadTimeout: deps.UploadTimeout,
		imageURLTTL:   deps.ImageURLTTL,
		now:           deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.imageURLTTL <= 0 {
		s.imageURLTTL = 15 * time.Minute
	}
	return s
}

// Get returns the stored profile, or an empty one if the user never saved
// it. ImageURL is a presigned GET link to the current image.
func (s *service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.withImageURL(ctx, p)
}

func (s *service) load(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		now := s.now().UTC()
		return &domain.Profile{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
	}
	return p, err
}

// withImageURL returns a copy of p whose ImageURL is presigned from
// ImageKey. The stored row keeps the s3:// location.
func (s *service) withImageURL(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	out := *p
	if out.ImageKey == "" {
		out.ImageURL = nil
		return &out, nil
	}
	url, err := s.objects.PresignedURL(ctx, out.ImageKey, s.imageURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign profile image: %v: %w", err, domain.ErrDependency)
	}
	out.ImageURL = &url
	return &out, nil
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		p.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Phone != nil {
		phone := *req.Phone
		p.Phone = &phone
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, err
	}
	return s.withImageURL(ctx, p)
}

// UploadImage stores the image under profiles/<user_id>/ and only then
// points the profile at it. The previous image is removed best-effort.
func (s *service) UploadImage(ctx context.Context, userID string, input UploadInput) (*domain.Profile, error) {
	ext := strings.ToLower(path.Ext(input.Filename))
	contentType, ok := allowedImageTypes[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported image type %q: %w", ext, domain.ErrBadRequest)
	}
	if input.ContentType != "" && input.ContentType != "application/octet-stream" && input.ContentType != contentType {
		return nil, fmt.Errorf("content type %q does not match %s: %w", input.ContentType, ext, domain.ErrBadRequest)
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("profiles/%s/%s%s", userID, id.New(), ext)
	uctx := ctx
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}
	location, err := s.objects.Upload(uctx, key, input.Reader, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload profile image: %v: %w", err, domain.ErrDependency)
	}

	previous := p.ImageKey
	p.ImageKey = key
	p.ImageURL = &location
	p.UpdatedAt = s.now().UTC()
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, err
	}
	if previous != "" && previous != key {
		if err := s.objects.Delete(ctx, previous); err != nil {
			slog.Warn("failed to delete previous profile image", "user_id", userID, "key", previous, "err", err)
		}
	}
	return s.withImageURL(ctx, p)
}
