package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	JWTSecret      []byte
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Handlers struct {
	Cart     *CartHandler
	Wishlist *WishlistHandler
	Products *ProductHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
}

func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// signed by the processor, no bearer token and no compression
	r.Post("/webhooks/payment", h.Checkout.PaymentWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/products", h.Products.ListProducts)
		r.Get("/products/{id}", h.Products.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.Wishlist.GetWishlist)
				r.Post("/", h.Wishlist.AddItem)
				r.Delete("/", h.Wishlist.Clear)
				r.Delete("/{product_id}", h.Wishlist.RemoveItem)
			})

			r.Post("/checkout/intent", h.Checkout.CreateIntent)

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Get("/products", h.Products.ListProducts)
				r.Post("/products", h.Products.CreateProduct)
				r.Get("/products/{id}", h.Products.GetProduct)
				r.Put("/products/{id}", h.Products.UpdateProduct)
				r.Delete("/products/{id}", h.Products.DeleteProduct)

				r.Get("/orders", h.Orders.ListOrders)
				r.Get("/orders/{order_id}", h.Orders.GetOrder)
				r.Post("/orders/{order_id}/ship", h.Orders.ShipOrder)

				r.Post("/emails", h.Orders.SendEmail)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
