package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockroomhq/stockroom-backend/api/controllers"
	"github.com/stockroomhq/stockroom-backend/api/middleware"
	inventorysvc "github.com/stockroomhq/stockroom-backend/internal/inventory"
	ledgersvc "github.com/stockroomhq/stockroom-backend/internal/ledger"
	reservationsvc "github.com/stockroomhq/stockroom-backend/internal/reservations"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Inventory    inventorysvc.Service
	Reservations reservationsvc.Service
	Ledger       ledgersvc.Service
	Metrics      prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Post("/", controllers.RegisterItem(deps.Inventory, logg))
		r.Get("/", controllers.ListItems(deps.Inventory, logg))
		r.Post("/bulk", controllers.BulkUpdateItems(deps.Inventory, logg))
		r.Get("/low-stock", controllers.LowStockItems(deps.Inventory, logg))
		r.Get("/stats", controllers.InventoryStats(deps.Inventory, logg))

		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", controllers.GetItem(deps.Inventory, logg))
			r.Put("/", controllers.UpdateItem(deps.Inventory, logg))
			r.Delete("/", controllers.DeleteItem(deps.Inventory, logg))
			r.Post("/adjust", controllers.AdjustQuantity(deps.Inventory, logg))
			r.Get("/availability", controllers.GetAvailability(deps.Inventory, logg))
			r.Get("/movements", controllers.ListMovements(deps.Ledger, logg))
			r.Get("/reconcile", controllers.ReconcileItem(deps.Inventory, logg))
		})
	})

	r.Route("/api/v1/reservations", func(r chi.Router) {
		r.Post("/", controllers.CreateReservation(deps.Reservations, logg))
		r.Get("/", controllers.ListReservations(deps.Reservations, logg))
		r.Post("/confirm-batch", controllers.ConfirmBatch(deps.Reservations, logg))

		r.Route("/{reservationID}", func(r chi.Router) {
			r.Get("/", controllers.GetReservation(deps.Reservations, logg))
			r.Post("/confirm", controllers.ConfirmReservation(deps.Reservations, logg))
			r.Post("/cancel", controllers.CancelReservation(deps.Reservations, logg))
		})
	})

	return r
}
