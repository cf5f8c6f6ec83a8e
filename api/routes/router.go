package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlabworks/labops-backend/api/controllers"
	"github.com/openlabworks/labops-backend/api/middleware"
	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/internal/inventory"
	"github.com/openlabworks/labops-backend/internal/ledger"
	"github.com/openlabworks/labops-backend/internal/notifications"
	"github.com/openlabworks/labops-backend/pkg/config"
	"github.com/openlabworks/labops-backend/pkg/enums"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

// RouterParams carry everything the HTTP surface depends on.
type RouterParams struct {
	Cfg           *config.Config
	Logger        *logger.Logger
	Readiness     map[string]controllers.Pinger
	Bookings      bookings.Service
	Inventory     inventory.Service
	Ledger        ledger.Service
	Notifications notifications.Service
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Cfg
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readiness))
	})

	manageOnly := middleware.RequireAnyRole(logg, enums.ActorRoleAdmin, enums.ActorRoleLabManager)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(params.Bookings, logg))
			r.Get("/", controllers.ListBookings(params.Bookings, logg))
			r.Get("/{bookingID}", controllers.GetBooking(params.Bookings, logg))
			r.With(manageOnly).Post("/{bookingID}/approve", controllers.ApproveBooking(params.Bookings, logg))
			r.With(manageOnly).Post("/{bookingID}/reject", controllers.RejectBooking(params.Bookings, logg))
			r.Post("/{bookingID}/cancel", controllers.CancelBooking(params.Bookings, logg))
		})

		r.Route("/labs/{labID}", func(r chi.Router) {
			r.Get("/availability", controllers.CheckAvailability(params.Bookings, logg))
			r.Get("/inventory", controllers.ListLabInventory(params.Inventory, logg))
		})

		r.With(manageOnly).Post("/stock", controllers.AddStock(params.Inventory, logg))
		r.Route("/items/{itemID}", func(r chi.Router) {
			r.Get("/", controllers.GetItem(params.Inventory, logg))
			r.Get("/ledger", controllers.ItemLedger(params.Ledger, logg))
			r.With(manageOnly).Post("/remove", controllers.RemoveStock(params.Inventory, logg))
			r.With(manageOnly).Post("/adjust", controllers.AdjustStock(params.Inventory, logg))
			r.With(manageOnly).Post("/move", controllers.MoveStock(params.Inventory, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(params.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Actor(logg),
			middleware.RequireRole(enums.ActorRoleAdmin, logg),
		)
		r.Post("/sweep/run", controllers.RunSweep(params.Bookings, logg))
	})

	return r
}
