package catalog

import (
	"strings"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// PicturePlaceholder — базовый URL, которым помечены картинки в данных каталога.
const PicturePlaceholder = "http://catalogbaseurltobereplaced"

// URIComposer подставляет настроенный базовый URL каталога вместо плейсхолдера.
type URIComposer struct {
	baseURL string
}

// NewURIComposer создаёт composer. Завершающий слэш baseURL отбрасывается.
func NewURIComposer(baseURL string) *URIComposer {
	return &URIComposer{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// ComposePictureURI возвращает абсолютный URI картинки.
// Ссылки без плейсхолдера возвращаются как есть, пустой baseURL ничего не меняет.
func (c *URIComposer) ComposePictureURI(reference string) string {
	if c == nil || c.baseURL == "" {
		return reference
	}
	return strings.Replace(reference, PicturePlaceholder, c.baseURL, 1)
}

var _ domain.URIComposer = (*URIComposer)(nil)
