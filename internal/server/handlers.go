package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/idgen"
	"github.com/mbd888/storesync/internal/logging"
	"github.com/mbd888/storesync/internal/queue"
	"github.com/mbd888/storesync/internal/security"
)

type registerRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	StoreURL       string `json:"store_url" binding:"required,url"`
	ConsumerKey    string `json:"consumer_key" binding:"required"`
	ConsumerSecret string `json:"consumer_secret" binding:"required"`
}

// registerHandler creates a merchant account and kicks off the onboarding
// sync chain. Registration succeeds even when the chain cannot be
// submitted; the periodic scans pick the client up later.
func (s *Server) registerHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	// The store URL is fetched server-side by sync jobs; block SSRF targets.
	if err := security.ValidateEndpointURL(req.StoreURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_store_url", "message": err.Error()})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// Store credentials are sealed before they ever touch storage.
	sealedKey, err := s.codec.Seal(req.ConsumerKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	sealedSecret, err := s.codec.Seal(req.ConsumerSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// A fresh registration counts as a login: the periodic scans only
	// consider logged-in clients, and they are the fallback that recovers
	// an onboarding whose submission failed.
	token := idgen.Token()
	now := time.Now()
	cl := &client.Client{
		ID:             idgen.WithPrefix("cl_"),
		Name:           req.Name,
		Email:          req.Email,
		HashedPassword: string(hashed),
		StoreURL:       req.StoreURL,
		ConsumerKey:    sealedKey,
		ConsumerSecret: sealedSecret,
		TokenHash:      client.HashToken(token),
		IsActive:       true,
		IsLoggedIn:     true,
		LastLoginTime:  &now,
		SyncStatus:     client.SyncPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.clients.Create(c.Request.Context(), cl); err != nil {
		if errors.Is(err, client.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
			return
		}
		logging.L(c.Request.Context()).Error("client create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	taskID := s.onboarding.Onboard(c.Request.Context(), cl.ID)

	c.JSON(http.StatusCreated, gin.H{
		"client":       cl,
		"access_token": token,
		"token_type":   "bearer",
		"task_id":      taskID,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// loginHandler verifies credentials, marks the client logged in, and
// triggers a background incremental sync. Sync problems never fail the
// login.
func (s *Server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	cl, err := s.clients.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		logging.L(c.Request.Context()).Error("client lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(cl.HashedPassword), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	// Each login rotates the API token; the previous one stops working.
	token := idgen.Token()
	now := time.Now()
	cl.IsLoggedIn = true
	cl.LastLoginTime = &now
	cl.TokenHash = client.HashToken(token)
	if err := s.clients.Update(c.Request.Context(), cl); err != nil {
		logging.L(c.Request.Context()).Error("login update failed", "client_id", cl.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	s.onboarding.TriggerIncrementalSync(c.Request.Context(), cl.ID)

	c.JSON(http.StatusOK, gin.H{
		"client":       cl,
		"access_token": token,
		"token_type":   "bearer",
	})
}

// logoutHandler ends the client's session. Logging out is the only way a
// client leaves the periodic scans' eligible set, so the token is also
// invalidated here.
func (s *Server) logoutHandler(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}

	cl, err := s.clients.GetByToken(c.Request.Context(), client.HashToken(token))
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		logging.L(c.Request.Context()).Error("client lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	cl.IsLoggedIn = false
	cl.TokenHash = ""
	if err := s.clients.Update(c.Request.Context(), cl); err != nil {
		logging.L(c.Request.Context()).Error("logout update failed", "client_id", cl.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"email": cl.Email})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "".
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// taskStatusHandler reports the state of a submitted job or chain.
func (s *Server) taskStatusHandler(c *gin.Context) {
	handle := c.Param("id")

	status, err := s.onboarding.Status(c.Request.Context(), handle)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		logging.L(c.Request.Context()).Error("task status lookup failed", "handle", handle, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": handle, "status": status})
}

// syncStatusHandler reports a client's sync lifecycle state by email.
func (s *Server) syncStatusHandler(c *gin.Context) {
	email := c.Param("email")

	cl, err := s.clients.GetByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		logging.L(c.Request.Context()).Error("client lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":          cl.Email,
		"sync_status":    cl.SyncStatus,
		"last_synced_at": cl.LastSyncedAt,
		"orders_count":   cl.OrdersCount,
	})
}
