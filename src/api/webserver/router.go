package webserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/auth"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/config"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/ledger"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/proposals"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/treasury"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	balance := ledger.NewBalance(db)
	contrib := ledger.NewContributions(db)
	propSvc := proposals.New(db, balance, contrib, rdb)
	treasSvc := treasury.New(db, balance, rdb)
	authSvc := auth.New(db, rdb, []byte(cfg.JWTSecret), cfg.StartingCoins)

	authH := NewAuth(authSvc)
	projH := NewProjects(db, balance, contrib)
	propH := NewProposals(propSvc)
	treasH := NewTreasury(treasSvc, balance)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/code", authH.RequestCode)
		v1.POST("/auth/register", authH.Register)
		v1.POST("/auth/login", authH.Login)

		secured := v1.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
		secured.GET("/me", treasH.Me)

		secured.POST("/projects", projH.Create)
		secured.GET("/projects/:id", projH.Get)
		secured.DELETE("/projects/:id", projH.Delete)
		secured.POST("/projects/:id/members", projH.AddMember)
		secured.GET("/projects/:id/updates", projH.Updates)
		secured.GET("/projects/:id/rates", projH.Rates)
		secured.PUT("/projects/:id/rates", projH.SetRates)
		secured.GET("/projects/:id/contributions", projH.Contributions)
		secured.GET("/projects/:id/proposals", propH.List)

		secured.POST("/proposals", propH.Create)
		secured.GET("/proposals/:id", propH.Get)
		secured.PUT("/proposals/:id", propH.Update)
		secured.DELETE("/proposals/:id", propH.Delete)
		secured.POST("/proposals/:id/transition", propH.Transition)
		secured.POST("/proposals/:id/like", propH.Like)
		secured.POST("/proposals/:id/bounties", propH.Pledge)
		secured.GET("/proposals/:id/bounties", propH.Bounties)
		secured.POST("/bounties/:id/confirm", propH.ConfirmBounty)

		secured.POST("/projects/:id/donations", treasH.Donate)
		secured.POST("/projects/:id/subscriptions", treasH.Subscribe)
		secured.DELETE("/subscriptions/:id", treasH.CancelSubscription)
		secured.POST("/projects/:id/withdrawals", treasH.Withdraw)
		secured.GET("/projects/:id/withdrawals", treasH.Withdrawals)
	}
}
