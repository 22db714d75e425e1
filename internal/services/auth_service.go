package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/knowhub/backend/internal/audit"
	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	audit     *audit.Logger
	cfg       *config.PointsConfig
	validator *validator.Validate
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	Nickname string `json:"nickname" validate:"required,min=2" example:"johnd"`         // Display name
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`                                                    // User information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, auditLogger *audit.Logger, cfg *config.PointsConfig) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		audit:     auditLogger,
		cfg:       cfg,
		validator: validator.New(),
	}
}

// Register handles user registration. The signup reward lands on the ledger
// in the same database transaction that creates the user.
// @Summary Register a new user
// @Description Register a new user and grant the signup point reward
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	userID := uuid.NewString()

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), `
		INSERT INTO users (id, email, password, nickname, role, points, total_recharged, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 1, NOW(), NOW())`,
		userID, strings.ToLower(req.Email), hashedPassword, req.Nickname, models.RoleUser)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	reward := s.cfg.RegisterRewardPoints
	if _, err := s.ledger.CreditTx(r.Context(), tx, userID, reward, models.KindRegister,
		fmt.Sprintf("Registration reward: %d points", reward), ""); err != nil {
		log.Printf("[AUTH] Registration reward failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %s, Email: %s", userID, req.Email)
	s.audit.LogOperation(userID, audit.ActionRegister, "user", userID, r.RemoteAddr, r.UserAgent(), "")

	token, err := generateJWT(userID, models.RoleUser)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, AuthResponse{
		Token: token,
		User: models.User{
			ID:       userID,
			Email:    strings.ToLower(req.Email),
			Nickname: req.Nickname,
			Role:     models.RoleUser,
			Points:   reward,
		},
	})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, email, nickname, role, points, total_recharged, password
		FROM users WHERE email = $1`,
		strings.ToLower(req.Email)).Scan(&user.ID, &user.Email, &user.Nickname, &user.Role, &user.Points, &user.TotalRecharged, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if _, err := s.db.ExecContext(r.Context(), "UPDATE users SET last_login = NOW() WHERE id = $1", user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for user %s: %v", user.ID, err)
	}

	token, err := generateJWT(user.ID, user.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	SendJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	SendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// GetProfile returns the authenticated user's account and balance
// @Summary Get user profile
// @Description Get authenticated user's account and point balance
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User "User account details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/me [get]
func (s *AuthService) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, email, nickname, role, points, total_recharged, created_at
		FROM users WHERE id = $1`,
		userID).Scan(&user.ID, &user.Email, &user.Nickname, &user.Role, &user.Points, &user.TotalRecharged, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch user %s: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, user)
}

func generateJWT(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
