package basket_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
	"github.com/vladislavdragonenkov/eshop-basket/internal/service/basket"
)

func newService(repo *recordingRepository, options ...basket.Option) *basket.Service {
	options = append([]basket.Option{
		basket.WithLogger(loggerForTests()),
		basket.WithMetrics(metrics.NewBasketMetricsWithRegisterer(prometheus.NewRegistry())),
	}, options...)
	return basket.NewService(repo, options...)
}

func seedBasket(t *testing.T, repo *recordingRepository, buyerID string, lines ...[3]int64) *domain.Basket {
	t.Helper()
	b, err := domain.NewBasket(buyerID)
	require.NoError(t, err)
	for _, line := range lines {
		require.NoError(t, b.AddItem(line[0], line[1], int(line[2])))
	}
	return repo.seed(context.Background(), b)
}

func TestAddItemToBasket_UpdatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1")
	svc := newService(repo)

	updated, err := svc.AddItemToBasket(ctx, existing.ID(), 20, 150, domain.DefaultItemQuantity)
	require.NoError(t, err)

	require.Equal(t, 1, repo.count("GetByID"))
	require.Equal(t, 1, repo.count("Update"))
	require.Len(t, updated.Items(), 1)

	item := updated.Items()[0]
	require.Equal(t, int64(20), item.CatalogItemID())
	require.Equal(t, int64(150), item.UnitPriceMinor())
	require.Equal(t, domain.DefaultItemQuantity, item.Quantity())

	stored, err := repo.Repository.GetByID(ctx, existing.ID())
	require.NoError(t, err)
	require.Len(t, stored.Items(), 1)
}

func TestAddItemToBasket_SameCatalogItemAppendsLine(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	updated, err := svc.AddItemToBasket(ctx, existing.ID(), 20, 50, 2)
	require.NoError(t, err)
	require.Len(t, updated.Items(), 2)
	require.Equal(t, 2, updated.Items()[1].Quantity())
	require.NotEqual(t, updated.Items()[0].ID(), updated.Items()[1].ID())
}

func TestAddItemToBasket_ValidationBeforeIO(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	svc := newService(repo)

	_, err := svc.AddItemToBasket(ctx, 1, 20, 50, -1)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.AddItemToBasket(ctx, 1, 20, -50, 1)
	require.ErrorIs(t, err, domain.ErrInvalidUnitPrice)

	require.Zero(t, repo.ioCalls())
}

func TestAddItemToBasket_MissingBasket(t *testing.T) {
	repo := newRecordingRepository()
	svc := newService(repo)

	_, err := svc.AddItemToBasket(context.Background(), 404, 20, 50, 1)
	require.ErrorIs(t, err, domain.ErrBasketNotFound)
	require.Zero(t, repo.count("Update"))
	require.Zero(t, repo.count("Add"))
}

func TestAddItemToBasket_PropagatesPersistenceFailure(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1")
	svc := newService(repo)

	storageErr := errors.New("connection reset")
	repo.failOn("Update", storageErr)

	_, err := svc.AddItemToBasket(context.Background(), existing.ID(), 20, 50, 1)
	require.ErrorIs(t, err, storageErr)
	require.Equal(t, 1, repo.count("Update"))

	stored, err := repo.Repository.GetByID(context.Background(), existing.ID())
	require.NoError(t, err)
	require.Empty(t, stored.Items())
}

func TestSetQuantities_TargetsMatchingIDs(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1}, [3]int64{21, 70, 1})
	svc := newService(repo)

	first := existing.Items()[0]
	second := existing.Items()[1]

	updated, err := svc.SetQuantities(ctx, existing.ID(), map[string]int{
		strconv.FormatInt(first.ID(), 10): 3,
		"999":                             7,
		"not-a-number":                    2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, repo.count("Update"))

	items := updated.Items()
	require.Len(t, items, 2)
	require.Equal(t, 3, items[0].Quantity())
	require.Equal(t, second.Quantity(), items[1].Quantity())
}

func TestSetQuantities_ZeroRemovesItem(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	updated, err := svc.SetQuantities(ctx, existing.ID(), map[string]int{
		strconv.FormatInt(existing.Items()[0].ID(), 10): 0,
	})
	require.NoError(t, err)
	require.Empty(t, updated.Items())
	require.Equal(t, 1, repo.count("Update"))
}

func TestSetQuantities_PurgedIDIsNotReusedByNextAdd(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1}, [3]int64{21, 70, 1})
	svc := newService(repo)

	purged := existing.Items()[1].ID()
	_, err := svc.SetQuantities(ctx, existing.ID(), map[string]int{strconv.FormatInt(purged, 10): 0})
	require.NoError(t, err)

	updated, err := svc.AddItemToBasket(ctx, existing.ID(), 99, 10, domain.DefaultItemQuantity)
	require.NoError(t, err)
	require.Len(t, updated.Items(), 2)
	added := updated.Items()[1]
	require.Equal(t, int64(99), added.CatalogItemID())
	require.NotEqual(t, purged, added.ID())

	// Клиент с устаревшим представлением корзины не должен задеть новую позицию.
	stale, err := svc.SetQuantities(ctx, existing.ID(), map[string]int{strconv.FormatInt(purged, 10): 5})
	require.NoError(t, err)
	require.Equal(t, 1, stale.Items()[1].Quantity())
}

func TestAddItemToBasket_ZeroQuantityIsKept(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1")

	updated, err := newService(repo).AddItemToBasket(context.Background(), existing.ID(), 20, 50, 0)
	require.NoError(t, err)
	require.Len(t, updated.Items(), 1)
	require.Zero(t, updated.Items()[0].Quantity(), "no implicit default in the service")
}

func TestSetQuantities_NegativeRejectedBeforeIO(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	_, err := svc.SetQuantities(context.Background(), existing.ID(), map[string]int{"1": -2})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	require.Zero(t, repo.ioCalls())
}

func TestSetQuantities_EmptyMappingStillUpdatesOnce(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	_, err := svc.SetQuantities(context.Background(), existing.ID(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.count("Update"))
}

func TestDeleteBasket_DelegatesOnce(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	require.NoError(t, svc.DeleteBasket(context.Background(), existing.ID()))
	require.Equal(t, 1, repo.count("Delete"))
	require.Equal(t, []int64{existing.ID()}, repo.deleted)
	require.Zero(t, repo.Len())
}

func TestDeleteBasket_Missing(t *testing.T) {
	repo := newRecordingRepository()
	svc := newService(repo)

	err := svc.DeleteBasket(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrBasketNotFound)
	require.Zero(t, repo.count("Delete"))
}

func TestTransferBasket_MovesItemsAndRemovesSource(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	source := seedBasket(t, repo, "anon-1", [3]int64{20, 50, 1}, [3]int64{21, 70, 3}, [3]int64{20, 50, 2})
	svc := newService(repo)

	require.NoError(t, svc.TransferBasket(ctx, "anon-1", "user-1"))

	require.Equal(t, 1, repo.count("Add"))
	require.Equal(t, 1, repo.count("Delete"))
	require.Equal(t, []int64{source.ID()}, repo.deleted)

	require.Len(t, repo.added, 1)
	target := repo.added[0]
	require.Equal(t, "user-1", target.BuyerID())
	require.Len(t, target.Items(), len(source.Items()))
	for idx, item := range target.Items() {
		require.Equal(t, source.Items()[idx].CatalogItemID(), item.CatalogItemID())
		require.Equal(t, source.Items()[idx].UnitPriceMinor(), item.UnitPriceMinor())
		require.Equal(t, source.Items()[idx].Quantity(), item.Quantity())
	}

	_, err := repo.Repository.GetBySpec(ctx, domain.BasketWithItemsSpecification{BuyerID: "anon-1"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransferBasket_NoSourceIsNoop(t *testing.T) {
	repo := newRecordingRepository()
	svc := newService(repo)

	require.NoError(t, svc.TransferBasket(context.Background(), "anon-missing", "user-1"))
	require.Zero(t, repo.count("Add"))
	require.Zero(t, repo.count("Delete"))
}

func TestTransferBasket_Validation(t *testing.T) {
	repo := newRecordingRepository()
	seedBasket(t, repo, "anon-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	require.ErrorIs(t, svc.TransferBasket(context.Background(), "", "user-1"), domain.ErrBuyerRequired)
	require.ErrorIs(t, svc.TransferBasket(context.Background(), "anon-1", "  "), domain.ErrBuyerRequired)
	require.NoError(t, svc.TransferBasket(context.Background(), "anon-1", "anon-1"))
	require.Zero(t, repo.ioCalls())
}

func TestTransferBasket_DeleteFailureLeavesBothBaskets(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	seedBasket(t, repo, "anon-1", [3]int64{20, 50, 1})
	svc := newService(repo)

	storageErr := errors.New("delete failed")
	repo.failOn("Delete", storageErr)

	err := svc.TransferBasket(ctx, "anon-1", "user-1")
	require.ErrorIs(t, err, storageErr)
	require.Equal(t, 2, repo.Len())
}

func TestTransferBasket_UsesTransactor(t *testing.T) {
	repo := newRecordingRepository()
	seedBasket(t, repo, "anon-1", [3]int64{20, 50, 1})
	tx := &recordingTransactor{}
	svc := newService(repo, basket.WithTransactor(tx))

	require.NoError(t, svc.TransferBasket(context.Background(), "anon-1", "user-1"))
	require.Equal(t, 1, tx.runs)
	require.Equal(t, 1, repo.count("Add"))
	require.Equal(t, 1, repo.count("Delete"))
}

func TestGetOrCreateBasketForBuyer(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	svc := newService(repo)

	created, err := svc.GetOrCreateBasketForBuyer(ctx, "buyer-9")
	require.NoError(t, err)
	require.NotZero(t, created.ID())
	require.Equal(t, 1, repo.count("Add"))

	again, err := svc.GetOrCreateBasketForBuyer(ctx, "buyer-9")
	require.NoError(t, err)
	require.Equal(t, created.ID(), again.ID())
	require.Equal(t, 1, repo.count("Add"))

	_, err = svc.GetOrCreateBasketForBuyer(ctx, " ")
	require.ErrorIs(t, err, domain.ErrBuyerRequired)
}

func TestCountItems(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	seedBasket(t, repo, "buyer-1", [3]int64{20, 50, 2}, [3]int64{21, 70, 3})
	svc := newService(repo)

	count, err := svc.CountItems(ctx, "buyer-1")
	require.NoError(t, err)
	require.Equal(t, 5, count)

	count, err = svc.CountItems(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestGetBasket(t *testing.T) {
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1")
	svc := newService(repo)

	got, err := svc.GetBasket(context.Background(), existing.ID())
	require.NoError(t, err)
	require.Equal(t, "buyer-1", got.BuyerID())

	_, err = svc.GetBasket(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrBasketNotFound)
}

func TestSeedScenario_EmptyAfterCleanup(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	existing := seedBasket(t, repo, "buyer-1")
	svc := newService(repo)

	withItem, err := svc.AddItemToBasket(ctx, existing.ID(), 20, 50, 1)
	require.NoError(t, err)

	cleared, err := svc.SetQuantities(ctx, existing.ID(), map[string]int{
		strconv.FormatInt(withItem.Items()[0].ID(), 10): 0,
	})
	require.NoError(t, err)
	require.Empty(t, cleared.Items())
}
