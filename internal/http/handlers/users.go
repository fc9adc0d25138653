package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	ListWithCity(ctx context.Context) ([]user.WithCity, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	Update(ctx context.Context, id string, params user.UpdateParams) (user.User, error)
	Delete(ctx context.Context, id string) error
	GroupByCity(ctx context.Context) ([]user.CityGroup, error)
}

type UsersHandler struct {
	repo UserDirectory
}

func NewUsersHandler(repo UserDirectory) *UsersHandler {
	return &UsersHandler{repo: repo}
}

type UpdateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2"`
	Email *string `json:"email" binding:"omitempty,email"`
	Age   *int    `json:"age" binding:"omitempty,gt=0"`
	City  *string `json:"city" binding:"omitempty,uuid"`
	Role  *string `json:"role" binding:"omitempty,oneof=admin user"`
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	users, err := h.repo.ListWithCity(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": users,
		"count": len(users),
	})
}

func (h *UsersHandler) GetUserByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "user id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if err == user.ErrNotFound {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

// CreateUser is the admin-only variant of registration; the payload shape
// and validation are identical.
func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	role := req.Role

	if role == "" {
		role = user.RoleUser
	}

	now := time.Now().UTC()

	created, err := h.repo.Create(cctx, user.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		Age:          req.Age,
		CityID:       req.City,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	if err != nil {
		respondUserWriteError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusOK, created)
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "user id must be a valid UUID", nil)
		return
	}

	var req UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	params := user.UpdateParams{
		Age:    req.Age,
		CityID: req.City,
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		params.Name = &trimmed
	}

	if req.Email != nil {
		normalized := normalizeEmail(*req.Email)
		params.Email = &normalized
	}

	// Only admins may change a role; for everyone else the field is
	// silently dropped rather than rejected.
	role, _ := middlewares.RoleFromContext(ctx)

	if req.Role != nil && role == user.RoleAdmin {
		params.Role = req.Role
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	updated, err := h.repo.Update(cctx, id, params)

	if err != nil {
		respondUserWriteError(ctx, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "user id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// deleting an absent id is a no-op, not an error
	err := h.repo.Delete(cctx, id)

	if err != nil {
		RespondInternal(ctx, "Could not delete user")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *UsersHandler) UsersByCity(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	groups, err := h.repo.GroupByCity(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not aggregate users by city")
		return
	}

	ctx.JSON(http.StatusOK, groups)
}
