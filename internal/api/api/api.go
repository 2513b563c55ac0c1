package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"confdesk/cmd/middleware"
	"confdesk/internal/service"
)

type Routers struct {
	Service   service.Service
	JWTSecret []byte
	JWTIssuer string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/health", r.Service.Health)

	apiGroup := app.Group("/v1")
	apiGroup.Use(middleware.Auth(r.JWTSecret, r.JWTIssuer))

	apiGroup.GET("/events/:id/pricing", r.Service.Pricing)
	apiGroup.POST("/events/:id/discounts/check", r.Service.CheckDiscount)
	apiGroup.POST("/events/:id/registrations", r.Service.Register)
	apiGroup.POST("/events/:id/abstracts", r.Service.SubmitAbstract)
	apiGroup.POST("/events/:id/accompanies", r.Service.AddAccompany)
	apiGroup.POST("/events/:id/workshops", r.Service.AddWorkshops)
	apiGroup.POST("/events/:id/banquets", r.Service.AddBanquet)
	apiGroup.POST("/orders", r.Service.NewOrder)
	apiGroup.POST("/verify", r.Service.Verify)
	apiGroup.GET("/payments/:id", r.Service.GetPayment)

	admin := apiGroup.Group("/admin")
	admin.Use(middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin))

	admin.POST("/events", r.Service.CreateEvent)
	admin.POST("/events/:id/slabs", r.Service.AddSlab)
	admin.POST("/events/:id/discounts", r.Service.AddDiscount)
	admin.POST("/events/:id/categories", r.Service.AddCategory)
	admin.POST("/events/:id/workshops", r.Service.AddWorkshop)
	admin.POST("/events/:id/banquet-slabs", r.Service.AddBanquetSlab)
	admin.POST("/quotas", r.Service.CreateQuota)
	admin.GET("/quotas/:id", r.Service.GetQuota)
	admin.POST("/quotas/:id/reserve", r.Service.ReserveQuota)
	admin.POST("/quotas/:id/release", r.Service.ReleaseQuota)
	admin.POST("/suspensions", r.Service.SetItemSuspended)
	admin.GET("/registrations/:id", r.Service.GetRegistration)
	admin.PATCH("/registrations/:id/suspension", r.Service.SetRegistrationSuspended)
	admin.PATCH("/abstracts/:id/status", r.Service.SetAbstractStatus)
	admin.POST("/payments/:id/reconcile", r.Service.ReconcilePayment)

	return app
}
