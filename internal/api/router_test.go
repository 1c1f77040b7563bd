package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/user"
)

type directory struct {
	user.Service
	users map[string]*user.User
}

func (d directory) GetByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users := directory{users: map[string]*user.User{
		"u-admin":   {ID: "u-admin", Role: auth.RoleAdmin, IsActive: true},
		"u-retired": {ID: "u-retired", Role: auth.RoleAdmin, IsActive: false},
		"u-hr":      {ID: "u-hr", Role: auth.RoleHR, IsActive: true},
	}}
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	r := gin.New()
	r.GET("/admin", auth.AuthRequired(jwtManager), RequireAdmin(users), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		userID string
		want   int
	}{
		{"u-admin", http.StatusNoContent},
		{"u-retired", http.StatusForbidden},
		{"u-hr", http.StatusForbidden},
		{"u-ghost", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			// Every token claims admin; only the stored profile counts.
			token, err := jwtManager.GenerateAccessToken(tt.userID, "", auth.RoleAdmin)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	assert.Equal(t,
		[]string{"https://rooms.example.com", "https://admin.example.com"},
		allowedOrigins(true, " https://rooms.example.com, ,https://admin.example.com"))
	assert.Empty(t, allowedOrigins(true, ""))
	assert.Contains(t, allowedOrigins(false, "https://ignored.example.com"), "http://localhost:3000")
}
