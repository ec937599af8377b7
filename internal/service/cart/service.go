package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

// Операции корзины для метрик.
const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
)

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger  *log.Entry
	Cache   cache.SummaryCache
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задает logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithCache задает кэш сводок корзины.
func WithCache(c cache.SummaryCache) Option {
	return func(opts *Options) { opts.Cache = c }
}

// WithMetrics задает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// Service владеет единственной корзиной пары (пользователь, организация).
type Service struct {
	uow       domain.UnitOfWork
	validator *validation.Engine
	cache     cache.SummaryCache
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
	now       func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(uow domain.UnitOfWork, validator *validation.Engine, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cart-service")
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if validator == nil {
		validator = validation.NewEngine(opts.Logger)
	}
	return &Service{
		uow:       uow,
		validator: validator,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// GetCart возвращает корзину актора, создавая её при первом обращении.
func (s *Service) GetCart(ctx context.Context, actor domain.Actor) (domain.Cart, error) {
	if err := actor.Validate(); err != nil {
		return domain.Cart{}, err
	}

	var cart domain.Cart
	err := s.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cart, err = repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
		return err
	})
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	err = s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cart, err = s.loadOrCreate(ctx, repos, actor)
		return err
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// AddItem добавляет товар. Если товар уже в корзине, количества складываются,
// а цена позиции остаётся зафиксированной при первом добавлении.
// Суммарное количество сверяется с остатком целиком; при нехватке возвращается
// *domain.StockError и корзина не меняется.
func (s *Service) AddItem(ctx context.Context, actor domain.Actor, productID string, quantity int32) (domain.Cart, error) {
	if err := actor.Validate(); err != nil {
		return domain.Cart{}, err
	}
	if productID == "" {
		return domain.Cart{}, domain.Validationf("product id is required")
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.mutate(ctx, actor, opAdd, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		product, err := s.purchasable(ctx, repos.Catalog, productID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		item, exists := cart.ItemByProduct(productID)
		var inCart int32
		if exists {
			inCart = item.Quantity
		} else {
			if len(cart.Items) >= domain.MaxLineItems {
				return domain.Validationf("cart already has %d items", domain.MaxLineItems)
			}
			item = domain.CartItem{
				ID:             uuid.NewString(),
				CartID:         cart.ID,
				ProductID:      productID,
				UnitPriceMinor: product.PriceMinor,
				CreatedAt:      now,
			}
		}

		merged := inCart + quantity
		if err := domain.ValidateQuantity(merged); err != nil {
			return err
		}
		if product.TrackStock && merged > product.Stock {
			return &domain.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				InCart:      inCart,
				Requested:   quantity,
			}
		}

		item.Quantity = merged
		item.UpdatedAt = now
		return repos.Carts.SaveItem(ctx, item)
	})
	return cart, err
}

// UpdateItem задаёт новое количество позиции.
func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, itemID string, quantity int32) (domain.Cart, error) {
	if err := actor.Validate(); err != nil {
		return domain.Cart{}, err
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, actor, opUpdate, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		item, ok := cart.ItemByID(itemID)
		if !ok {
			return domain.NotFoundf("cart item %s", itemID)
		}

		product, err := s.purchasable(ctx, repos.Catalog, item.ProductID)
		if err != nil {
			return err
		}
		if product.TrackStock && quantity > product.Stock {
			return &domain.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				InCart:      item.Quantity,
				Requested:   quantity,
			}
		}

		item.Quantity = quantity
		item.UpdatedAt = s.now().UTC()
		return repos.Carts.SaveItem(ctx, item)
	})
}

// RemoveItem удаляет позицию.
func (s *Service) RemoveItem(ctx context.Context, actor domain.Actor, itemID string) (domain.Cart, error) {
	if err := actor.Validate(); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, actor, opRemove, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		removed, err := repos.Carts.DeleteItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.NotFoundf("cart item %s", itemID)
		}
		return nil
	})
}

// Clear удаляет все позиции; сама корзина остаётся.
func (s *Service) Clear(ctx context.Context, actor domain.Actor) (domain.Cart, error) {
	if err := actor.Validate(); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, actor, opClear, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		return repos.Carts.Clear(ctx, cart.ID, s.now().UTC())
	})
}

// Summarize считает итог корзины и разбиение по поставщикам.
func (s *Service) Summarize(ctx context.Context, actor domain.Actor) (domain.CartSummary, error) {
	if err := actor.Validate(); err != nil {
		return domain.CartSummary{}, err
	}

	summary, err := s.cache.Get(ctx, actor)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WithError(err).Warn("cart summary cache read failed")
	}

	err = s.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			summary = Summarize(domain.Cart{}, nil)
			return nil
		}
		if err != nil {
			return err
		}
		items, err := LineItems(ctx, repos.Catalog, cart)
		if err != nil {
			return err
		}
		summary = Summarize(cart, items)
		return nil
	})
	if err != nil {
		return domain.CartSummary{}, fmt.Errorf("summarize cart: %w", err)
	}

	if err := s.cache.Set(ctx, actor, summary); err != nil {
		s.logger.WithError(err).Warn("cart summary cache write failed")
	}
	return summary, nil
}

// Validate проверяет все позиции, включая расхождение цен, и ничего не меняет.
func (s *Service) Validate(ctx context.Context, actor domain.Actor) (validation.Result, error) {
	if err := actor.Validate(); err != nil {
		return validation.Result{}, err
	}

	var result validation.Result
	err := s.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			result = validation.Result{Valid: true}
			return nil
		}
		if err != nil {
			return err
		}
		items, err := LineItems(ctx, repos.Catalog, cart)
		if err != nil {
			return err
		}
		result, err = s.validator.Validate(ctx, repos.Catalog, items, validation.Options{
			Mode:       validation.ModeCollectAll,
			CheckPrice: true,
		})
		return err
	})
	if err != nil {
		return validation.Result{}, fmt.Errorf("validate cart: %w", err)
	}
	return result, nil
}

// Invalidate сбрасывает кэш сводки (после оформления заказа).
func (s *Service) Invalidate(ctx context.Context, actor domain.Actor) {
	if err := s.cache.Delete(ctx, actor); err != nil {
		s.logger.WithError(err).WithField("user_id", actor.UserID).Warn("cart summary cache invalidation failed")
	}
}

func (s *Service) mutate(ctx context.Context, actor domain.Actor, op string, fn func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error) (domain.Cart, error) {
	var result domain.Cart
	err := s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := s.loadOrCreate(ctx, repos, actor)
		if err != nil {
			return err
		}
		if err := fn(ctx, repos, &cart); err != nil {
			return err
		}
		result, err = repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
		return err
	})
	s.metrics.RecordCartMutation(op, err)
	if err != nil {
		return domain.Cart{}, err
	}

	s.Invalidate(ctx, actor)
	return result, nil
}

func (s *Service) loadOrCreate(ctx context.Context, repos domain.Repositories, actor domain.Actor) (domain.Cart, error) {
	cart, err := repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	now := s.now().UTC()
	if err := repos.Carts.Create(ctx, domain.Cart{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	// Корзину мог создать параллельный запрос; читаем ту, что сохранилась.
	return repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
}

// purchasable загружает товар и проверяет, что его можно положить в корзину.
func (s *Service) purchasable(ctx context.Context, catalog domain.CatalogReader, productID string) (domain.Product, error) {
	product, err := catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, product.Name)
	}
	if product.PriceMinor < 0 || product.PriceMinor > domain.MaxUnitPriceMinor {
		return domain.Product{}, fmt.Errorf("%w: %s has an out-of-range price", domain.ErrProductUnavailable, product.Name)
	}
	vendor, err := catalog.GetVendor(ctx, product.VendorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrVendorInactive, product.Name)
	}
	if err != nil {
		return domain.Product{}, err
	}
	if !vendor.Active {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrVendorInactive, vendor.Name)
	}
	return product, nil
}
