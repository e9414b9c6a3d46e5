package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-systems/enroll-api/internal/middleware"
	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Semester   *SemesterHandler
	Subject    *SubjectHandler
	Enrollment *EnrollmentHandler
	Stats      *StatsHandler
}

// RegisterRoutes mounts the API surface under the given prefix.
func RegisterRoutes(router *gin.Engine, prefix string, h Handlers, authService *service.AuthService) {
	api := router.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.GET("/me", middleware.JWT(authService), h.Auth.Me)
	}

	authorized := api.Group("")
	authorized.Use(middleware.JWT(authService))

	teacherOnly := middleware.RequireRoles(models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	anyRole := middleware.RequireRoles(models.RoleTeacher, models.RoleStudent)

	semesters := authorized.Group("/semesters")
	{
		semesters.GET("", anyRole, h.Semester.List)
		semesters.GET("/:id", anyRole, h.Semester.Get)
		semesters.POST("", teacherOnly, h.Semester.Create)
		semesters.PUT("/:id", teacherOnly, h.Semester.Update)
	}

	subjects := authorized.Group("/subjects")
	{
		subjects.GET("", anyRole, h.Subject.List)
		subjects.GET("/catalog", studentOnly, h.Subject.Catalog)
		subjects.GET("/:id", anyRole, h.Subject.Get)
		subjects.POST("", teacherOnly, h.Subject.Create)
		subjects.PUT("/:id", teacherOnly, h.Subject.Update)
		subjects.GET("/:id/roster", teacherOnly, h.Subject.Roster)
		subjects.GET("/:id/roster/export", teacherOnly, h.Subject.ExportRoster)
	}

	enrollments := authorized.Group("/enrollments")
	{
		enrollments.POST("", studentOnly, h.Enrollment.Enroll)
		enrollments.DELETE("/:id", studentOnly, h.Enrollment.Withdraw)
		enrollments.GET("/me", studentOnly, h.Enrollment.ListMine)
		enrollments.GET("/history", studentOnly, h.Enrollment.History)
	}

	api.GET("/stats", middleware.JWT(authService), teacherOnly, h.Stats.Statistics)
}
