package mvmgen

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds recently assembled images, keyed by Config.Fingerprint.
// It is safe for concurrent use.
type Cache struct {
	images *lru.Cache[[32]byte, []byte]
}

func NewCache(size int) *Cache {
	images, err := lru.New[[32]byte, []byte](size)
	if err != nil {
		panic(err)
	}
	return &Cache{images: images}
}

// Assemble returns the image for cfg, assembling it on a miss.
// The returned slice belongs to the caller.
func (c *Cache) Assemble(cfg Config) ([]byte, error) {
	fp := cfg.Fingerprint()
	if img, ok := c.images.Get(fp); ok {
		return slices.Clone(img), nil
	}
	g, err := New(cfg)
	if err != nil {
		return nil, err
	}
	img, err := g.Assemble()
	if err != nil {
		return nil, err
	}
	c.images.Add(fp, img)
	return slices.Clone(img), nil
}

func (c *Cache) Len() int {
	return c.images.Len()
}
