package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

// Суммы в API передаются десятичными строками ("212.00"), внутри хранятся минимальные единицы.

// AddCartItemRequest соответствует телу POST /cart/items.
type AddCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// UpdateCartItemRequest соответствует телу PATCH /cart/items/{itemID}.
type UpdateCartItemRequest struct {
	Quantity int32 `json:"quantity"`
}

// DeliveryDTO: адрес и контакт получателя.
type DeliveryDTO struct {
	Address       string     `json:"address"`
	ContactName   string     `json:"contact_name,omitempty"`
	ContactPhone  string     `json:"contact_phone,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	RequestedDate *time.Time `json:"requested_date,omitempty"`
}

// CheckoutRequest принимают POST /cart/checkout и POST /quotes/{id}/accept.
type CheckoutRequest struct {
	Delivery DeliveryDTO `json:"delivery"`
}

type QuoteItemRequest struct {
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	ProductID string `json:"product_id,omitempty"`
	VendorID  string `json:"vendor_id,omitempty"`
}

// QuoteRequest используется в POST /quotes и PATCH /quotes/{id}.
type QuoteRequest struct {
	RecipientID string             `json:"recipient_id,omitempty"`
	Title       string             `json:"title"`
	Notes       string             `json:"notes,omitempty"`
	ValidUntil  *time.Time         `json:"valid_until,omitempty"`
	Items       []QuoteItemRequest `json:"items"`
}

// RejectQuoteRequest несёт причину отказа.
type RejectQuoteRequest struct {
	Reason string `json:"reason"`
}

type CartItemDTO struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// CartDTO отдаётся всеми ручками корзины.
type CartDTO struct {
	ID        string        `json:"id"`
	Items     []CartItemDTO `json:"items"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TotalsDTO: подытог, налог, итог.
type TotalsDTO struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type LineItemDTO struct {
	ItemID    string `json:"item_id"`
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// VendorGroupDTO группирует позиции одного поставщика.
type VendorGroupDTO struct {
	VendorID string        `json:"vendor_id"`
	Items    []LineItemDTO `json:"items"`
	Totals   TotalsDTO     `json:"totals"`
}

// CartSummaryDTO — ответ GET /cart/summary.
type CartSummaryDTO struct {
	CartID     string           `json:"cart_id,omitempty"`
	ItemCount  int              `json:"item_count"`
	Quantity   int64            `json:"quantity"`
	Totals     TotalsDTO        `json:"totals"`
	Groups     []VendorGroupDTO `json:"groups"`
	Unresolved []LineItemDTO    `json:"unresolved,omitempty"`
}

// IssueDTO описывает, почему позицию нельзя купить.
type IssueDTO struct {
	ItemID        string `json:"item_id,omitempty"`
	ProductID     string `json:"product_id,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	VendorID      string `json:"vendor_id,omitempty"`
	Kind          string `json:"kind"`
	Details       string `json:"details,omitempty"`
	RecordedPrice string `json:"recorded_price,omitempty"`
	CurrentPrice  string `json:"current_price,omitempty"`
	Requested     int64  `json:"requested,omitempty"`
	Available     int32  `json:"available,omitempty"`
}

// ValidationDTO возвращает POST /cart/validate.
type ValidationDTO struct {
	Valid  bool       `json:"valid"`
	Issues []IssueDTO `json:"issues"`
}

type OrderItemDTO struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// OrderDTO представляет заказ одного поставщика.
type OrderDTO struct {
	ID         string         `json:"id"`
	Number     string         `json:"number"`
	VendorID   string         `json:"vendor_id"`
	BuyerID    string         `json:"buyer_id"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	Status     string         `json:"status"`
	Currency   string         `json:"currency"`
	Items      []OrderItemDTO `json:"items"`
	Subtotal   string         `json:"subtotal"`
	Tax        string         `json:"tax"`
	Total      string         `json:"total"`
	Delivery   DeliveryDTO    `json:"delivery"`
	CreatedAt  time.Time      `json:"created_at"`
}

type CheckoutSummaryDTO struct {
	OrderCount int    `json:"order_count"`
	Total      string `json:"total"`
}

// CheckoutResponse возвращается с 201 после оформления корзины.
type CheckoutResponse struct {
	Orders  []OrderDTO         `json:"orders"`
	Summary CheckoutSummaryDTO `json:"summary"`
}

type QuoteItemDTO struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	ProductID string `json:"product_id,omitempty"`
	VendorID  string `json:"vendor_id,omitempty"`
}

// QuoteDTO отдаётся всеми ручками котировок.
type QuoteDTO struct {
	ID              string         `json:"id"`
	Number          string         `json:"number"`
	AuthorID        string         `json:"author_id"`
	RecipientID     string         `json:"recipient_id,omitempty"`
	Title           string         `json:"title"`
	Notes           string         `json:"notes,omitempty"`
	Status          string         `json:"status"`
	ValidUntil      *time.Time     `json:"valid_until,omitempty"`
	Items           []QuoteItemDTO `json:"items"`
	Subtotal        string         `json:"subtotal"`
	Tax             string         `json:"tax"`
	Total           string         `json:"total"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	ViewedAt        *time.Time     `json:"viewed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// AcceptQuoteResponse содержит котировку после принятия и созданные заказы.
type AcceptQuoteResponse struct {
	Quote    QuoteDTO         `json:"quote"`
	Checkout CheckoutResponse `json:"checkout"`
}

// OrdersResponse: заказы покупателя, новые первыми.
type OrdersResponse struct {
	Orders []OrderDTO `json:"orders"`
}

func (d DeliveryDTO) toDomain() domain.DeliveryInfo {
	return domain.DeliveryInfo{
		Address:       strings.TrimSpace(d.Address),
		ContactName:   strings.TrimSpace(d.ContactName),
		ContactPhone:  strings.TrimSpace(d.ContactPhone),
		Notes:         d.Notes,
		RequestedDate: d.RequestedDate,
	}
}

func deliveryToDTO(d domain.DeliveryInfo) DeliveryDTO {
	return DeliveryDTO{
		Address:       d.Address,
		ContactName:   d.ContactName,
		ContactPhone:  d.ContactPhone,
		Notes:         d.Notes,
		RequestedDate: d.RequestedDate,
	}
}

// toDraft разбирает суммы позиций; ошибки собираются по всем позициям.
func (q QuoteRequest) toDraft() (quote.Draft, error) {
	draft := quote.Draft{
		RecipientID: strings.TrimSpace(q.RecipientID),
		Title:       q.Title,
		Notes:       q.Notes,
		ValidUntil:  q.ValidUntil,
		Items:       make([]quote.ItemInput, 0, len(q.Items)),
	}

	var errs []error
	for i, item := range q.Items {
		price, err := domain.ParseAmount(strings.TrimSpace(item.UnitPrice))
		if err != nil {
			errs = append(errs, fmt.Errorf("items[%d].unit_price: %w", i, err))
			continue
		}
		draft.Items = append(draft.Items, quote.ItemInput{
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceMinor: price,
			ProductID:      strings.TrimSpace(item.ProductID),
			VendorID:       strings.TrimSpace(item.VendorID),
		})
	}
	if len(errs) > 0 {
		return quote.Draft{}, errors.Join(errs...)
	}
	return draft, nil
}

func totalsToDTO(t domain.Totals) TotalsDTO {
	return TotalsDTO{
		Subtotal: domain.FormatMinor(t.SubtotalMinor),
		Tax:      domain.FormatMinor(t.TaxMinor),
		Total:    domain.FormatMinor(t.TotalMinor),
	}
}

func cartToDTO(c domain.Cart) CartDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CartItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			LineTotal: domain.FormatMinor(item.UnitPriceMinor * int64(item.Quantity)),
		})
	}
	return CartDTO{ID: c.ID, Items: items, UpdatedAt: c.UpdatedAt}
}

func lineItemsToDTO(items []domain.LineItem) []LineItemDTO {
	out := make([]LineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, LineItemDTO{
			ItemID:    item.ItemID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			LineTotal: domain.FormatMinor(item.LineTotalMinor()),
		})
	}
	return out
}

func summaryToDTO(s domain.CartSummary) CartSummaryDTO {
	groups := make([]VendorGroupDTO, 0, len(s.Groups))
	for _, g := range s.Groups {
		groups = append(groups, VendorGroupDTO{
			VendorID: g.VendorID,
			Items:    lineItemsToDTO(g.Items),
			Totals:   totalsToDTO(g.Totals),
		})
	}
	dto := CartSummaryDTO{
		CartID:    s.CartID,
		ItemCount: s.ItemCount,
		Quantity:  s.Quantity,
		Totals:    totalsToDTO(s.Totals),
		Groups:    groups,
	}
	if len(s.Unresolved) > 0 {
		dto.Unresolved = lineItemsToDTO(s.Unresolved)
	}
	return dto
}

func issuesToDTO(issues []domain.Issue) []IssueDTO {
	out := make([]IssueDTO, 0, len(issues))
	for _, issue := range issues {
		dto := IssueDTO{
			ItemID:      issue.ItemID,
			ProductID:   issue.ProductID,
			ProductName: issue.ProductName,
			VendorID:    issue.VendorID,
			Kind:        string(issue.Kind),
			Details:     issue.Details,
			Requested:   issue.Requested,
			Available:   issue.Available,
		}
		if issue.Kind == domain.IssuePriceDrift {
			dto.RecordedPrice = domain.FormatMinor(issue.RecordedPriceMinor)
			dto.CurrentPrice = domain.FormatMinor(issue.CurrentPriceMinor)
		}
		out = append(out, dto)
	}
	return out
}

func validationToDTO(r validation.Result) ValidationDTO {
	return ValidationDTO{Valid: r.Valid, Issues: issuesToDTO(r.Issues)}
}

func orderToDTO(o domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			LineTotal: domain.FormatMinor(item.LineTotalMinor),
		})
	}
	return OrderDTO{
		ID:         o.ID,
		Number:     o.Number,
		VendorID:   o.VendorID,
		BuyerID:    o.BuyerID,
		SourceType: string(o.Source.Kind),
		SourceID:   o.Source.ID,
		Status:     string(o.Status),
		Currency:   o.Currency,
		Items:      items,
		Subtotal:   domain.FormatMinor(o.SubtotalMinor),
		Tax:        domain.FormatMinor(o.TaxMinor),
		Total:      domain.FormatMinor(o.TotalMinor),
		Delivery:   deliveryToDTO(o.Delivery),
		CreatedAt:  o.CreatedAt,
	}
}

func ordersToDTO(orders []domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderToDTO(o))
	}
	return out
}

func checkoutToDTO(r checkout.Result) CheckoutResponse {
	return CheckoutResponse{
		Orders: ordersToDTO(r.Orders),
		Summary: CheckoutSummaryDTO{
			OrderCount: r.Summary.OrderCount,
			Total:      domain.FormatMinor(r.Summary.TotalMinor),
		},
	}
}

func quoteToDTO(q domain.Quote) QuoteDTO {
	items := make([]QuoteItemDTO, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, QuoteItemDTO{
			ID:        item.ID,
			Position:  item.Position,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			ProductID: item.ProductID,
			VendorID:  item.VendorID,
		})
	}
	return QuoteDTO{
		ID:              q.ID,
		Number:          q.Number,
		AuthorID:        q.AuthorID,
		RecipientID:     q.RecipientID,
		Title:           q.Title,
		Notes:           q.Notes,
		Status:          string(q.Status),
		ValidUntil:      q.ValidUntil,
		Items:           items,
		Subtotal:        domain.FormatMinor(q.SubtotalMinor),
		Tax:             domain.FormatMinor(q.TaxMinor),
		Total:           domain.FormatMinor(q.TotalMinor),
		RejectionReason: q.RejectionReason,
		SentAt:          q.SentAt,
		ViewedAt:        q.ViewedAt,
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}
