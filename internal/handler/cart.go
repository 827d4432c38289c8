package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/pkg/utils"
	"paygate/internal/repository"
)

// CartHandler exposes the minimal cart surface checkout needs.
type CartHandler struct {
	carts  repository.CartStore
	logger *zap.Logger
}

func NewCartHandler(carts repository.CartStore, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

type addItemRequest struct {
	CartID    string          `json:"cart_id" form:"cart_id"`
	ProductID string          `json:"product_id" form:"product_id"`
	Name      string          `json:"name" form:"name"`
	Quantity  int             `json:"quantity" form:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" form:"unit_price"`
}

// AddItem adds a line to a cart, creating the cart when no id is supplied.
func (h *CartHandler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ack{Status: false, Message: "Invalid data."})
	}
	if req.ProductID == "" || req.Quantity <= 0 || req.UnitPrice.IsNegative() {
		return c.JSON(http.StatusBadRequest, ack{Status: false, Message: "Invalid data."})
	}

	cartID := req.CartID
	if cartID == "" {
		cartID = utils.GenerateCartID()
	}

	cart, err := h.carts.AddItem(c.Request().Context(), cartID, repository.CartItem{
		ProductID: req.ProductID,
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		h.logger.Error("Cart update failed", zap.String("cart_id", cartID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ack{Status: false, Message: "Internal error."})
	}

	return c.JSON(http.StatusOK, cart)
}

// Show returns a cart with its computed total.
func (h *CartHandler) Show(c echo.Context) error {
	cart, err := h.carts.Get(c.Request().Context(), c.Param("id"))
	if err == repository.ErrCartNotFound {
		return c.JSON(http.StatusNotFound, ack{Status: false, Message: "Cart not found."})
	}
	if err != nil {
		h.logger.Error("Cart lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ack{Status: false, Message: "Internal error."})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"cart":  cart,
		"total": cart.Total().StringFixed(2),
	})
}
