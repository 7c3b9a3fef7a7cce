package main

import (
	"log"
	"net/http"

	"publish-gateway/internal/httpapi"

	"github.com/gin-gonic/gin"
)

//
// 中间件
//

// corsMiddleware 跨域资源共享中间件
// 允许所有来源访问,便于前端开发和集成
// 生产环境建议根据需求配置白名单
func corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusNoContent)
			return
		}

		context.Next()
	}
}

//
// 路由构建主函数
//

// BuildGinRouter 构建 Gin 路由器
// 集中管理所有 HTTP 路由
func BuildGinRouter(app *AppContext) *gin.Engine {
	router := gin.Default()

	// 应用全局中间件
	router.Use(corsMiddleware())

	// 健康检查
	router.GET("/healthz", handleHealthCheck)

	// API v1 路由组
	apiV1 := router.Group("/v1")
	{
		// 发布提交接口
		registerPublishRoutes(apiV1, app)

		// 状态查询接口
		registerStatusRoutes(apiV1, app)

		// 发布记录接口
		registerRecordRoutes(apiV1, app)
	}

	return router
}

// handleHealthCheck 健康检查接口
func handleHealthCheck(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// registerPublishRoutes 注册发布相关路由
func registerPublishRoutes(group *gin.RouterGroup, app *AppContext) {
	publishHandler := httpapi.NewPublishHandler(app.Service)
	group.POST("/publish", gin.WrapH(publishHandler))
}

// registerStatusRoutes 注册状态查询路由
func registerStatusRoutes(group *gin.RouterGroup, app *AppContext) {
	statusHandler := httpapi.NewStatusHandler(app.StatusStore)
	group.GET("/status", gin.WrapF(statusHandler.HandleStatusQuery))
	group.GET("/status/history", gin.WrapF(statusHandler.HandleStatusHistory))
	group.POST("/status/update", gin.WrapF(statusHandler.HandleStatusUpdate))
}

// registerRecordRoutes 注册发布记录路由
func registerRecordRoutes(group *gin.RouterGroup, app *AppContext) {
	recordStore, ok := app.RecordStoreImpl.(httpapi.PublishRecordStore)
	if !ok {
		log.Println("[Router] RecordStore 不支持查询接口,跳过发布记录路由注册")
		return
	}

	recordHandler := httpapi.NewPublishRecordsHandler(
		recordStore,
		app.Config.Storage.Namespace,
	)

	group.GET("/publish-records", gin.WrapF(recordHandler.HandleQuery))
	group.GET("/publish-records/stats", gin.WrapF(recordHandler.HandleStats))
}
