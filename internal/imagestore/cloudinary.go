package imagestore

import (
	"context"
	"strings"

	"geoattend/internal/cloudinary"
)

// Cloudinary stores images as Cloudinary assets. References are delivery URLs.
type Cloudinary struct {
	client *cloudinary.Client
}

func NewCloudinary(c *cloudinary.Client) *Cloudinary {
	return &Cloudinary{client: c}
}

func (s *Cloudinary) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	res, err := s.client.Upload(ctx, data, strings.TrimSuffix(key, ".jpg"))
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

func (s *Cloudinary) Get(ctx context.Context, ref string) ([]byte, error) {
	return s.client.Download(ctx, ref)
}

func (s *Cloudinary) Delete(ctx context.Context, ref string) error {
	id, err := cloudinary.PublicIDFromURL(ref)
	if err != nil {
		return err
	}
	return s.client.Destroy(ctx, id)
}
