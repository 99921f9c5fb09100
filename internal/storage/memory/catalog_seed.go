package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// DemoCatalog возвращает демонстрационный каталог для локального запуска.
// PictureURI содержит плейсхолдер базового URL, его заменяет URIComposer.
func DemoCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		{Name: ".NET Bot Black Sweatshirt", Description: ".NET Bot Black Sweatshirt", PriceMinor: 1950, PictureURI: "http://catalogbaseurltobereplaced/images/products/1.png"},
		{Name: ".NET Black & White Mug", Description: ".NET Black & White Mug", PriceMinor: 850, PictureURI: "http://catalogbaseurltobereplaced/images/products/2.png"},
		{Name: "Prism White T-Shirt", Description: "Prism White T-Shirt", PriceMinor: 1200, PictureURI: "http://catalogbaseurltobereplaced/images/products/3.png"},
		{Name: ".NET Foundation Sweatshirt", Description: ".NET Foundation Sweatshirt", PriceMinor: 1200, PictureURI: "http://catalogbaseurltobereplaced/images/products/4.png"},
		{Name: "Roslyn Red Sheet", Description: "Roslyn Red Sheet", PriceMinor: 850, PictureURI: "http://catalogbaseurltobereplaced/images/products/5.png"},
		{Name: ".NET Blue Sweatshirt", Description: ".NET Blue Sweatshirt", PriceMinor: 1200, PictureURI: "http://catalogbaseurltobereplaced/images/products/6.png"},
	}
}

// SeedCatalog добавляет items в репозиторий каталога.
func SeedCatalog(ctx context.Context, repo domain.Repository[domain.CatalogItem], items []domain.CatalogItem) error {
	for idx := range items {
		item := items[idx]
		if _, err := repo.Add(ctx, &item); err != nil {
			return fmt.Errorf("seed catalog item %q: %w", item.Name, err)
		}
	}
	return nil
}
