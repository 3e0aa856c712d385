package user

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"

	"github.com/Seann-Moser/rbac"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Seann-Moser/socialcast/session"
)

const defaultRole = "user"

type Server struct {
	Store    Store
	sessions *session.Client
	rbac     *rbac.Manager
}

// NewServer creates a new Server instance. rbacManager may be nil, in which case roles
// live only on the user document.
func NewServer(store Store, sessions *session.Client, rbacManager *rbac.Manager) *Server {
	return &Server{
		Store:    store,
		sessions: sessions,
		rbac:     rbacManager,
	}
}

// Routes mounts the account endpoints. The /me routes require a session.
func (s *Server) Routes(r chi.Router) {
	r.Post("/register", s.RegisterHandler)
	r.Post("/login", s.LoginPasswordHandler)
	r.Post("/logout", s.LogoutHandler)
	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Require)
		r.Get("/me", s.GetUser)
		r.Patch("/me", s.UserSettingsHandler)
	})
}

// writeJSON helper sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// writeError helper sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Username must:
//   - start with a letter
//   - be 2 to 20 characters long
//   - contain only letters, digits, or underscores
var usernameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{1,19}$`)

// Password must:
//   - be 8 to 64 characters long
//   - include a lowercase letter, an uppercase letter and a digit
//   - include at least one special character (non-alphanumeric)
var (
	lowerRegex   = regexp.MustCompile(`[a-z]`)
	upperRegex   = regexp.MustCompile(`[A-Z]`)
	digitRegex   = regexp.MustCompile(`\d`)
	specialRegex = regexp.MustCompile(`[\W_]`)
)

// ValidateUsername returns an error if the username doesn't meet policy.
func ValidateUsername(u string) error {
	if !usernameRegex.MatchString(u) {
		return errors.New("username must start with a letter, be 2 to 20 chars long, and contain only letters, digits, or underscores")
	}
	return nil
}

// ValidatePassword returns an error if the password doesn't meet policy.
func ValidatePassword(pw string) error {
	if len(pw) < 8 || len(pw) > 64 {
		return errors.New("password must be 8 to 64 characters long")
	}
	if !lowerRegex.MatchString(pw) {
		return errors.New("password must include at least one lowercase letter")
	}
	if !upperRegex.MatchString(pw) {
		return errors.New("password must include at least one uppercase letter")
	}
	if !digitRegex.MatchString(pw) {
		return errors.New("password must include at least one digit")
	}
	if !specialRegex.MatchString(pw) {
		return errors.New("password must include at least one special character")
	}
	return nil
}

// ValidateCredentials checks both username and password in one call.
func ValidateCredentials(username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	return ValidatePassword(password)
}

// RegisterHandler handles new user registration.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ValidateCredentials(req.Username, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := s.Store.GetUserByUsername(r.Context(), req.Username)
	if err == nil {
		writeError(w, http.StatusConflict, "Username already exists")
		return
	}
	if !errors.Is(err, ErrUserNotFound) {
		log.Printf("Error checking existing user: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to check username availability")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	user := &User{
		Username:     req.Username,
		Name:         req.Name,
		Preferences:  req.Preferences,
		PasswordHash: hashedPassword,
		Roles:        []string{defaultRole},
	}
	if err := s.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		log.Printf("Error creating user: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	s.assignDefaultRole(r.Context(), user.ID)

	_, token, err := s.sessions.Issue(w, r, user.ID, user.Username, user.Roles)
	if err != nil {
		log.Printf("Error setting session cookie: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to set session")
		return
	}
	log.Printf("User registered: %s", user.Username)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "User registered successfully",
		"userId":   user.ID,
		"username": user.Username,
		"token":    token,
	})
}

func (s *Server) assignDefaultRole(ctx context.Context, userID string) {
	if s.rbac == nil {
		return
	}
	role, err := s.rbac.Roles.GetRoleByName(ctx, defaultRole)
	if role == nil || err != nil {
		role = &rbac.Role{Name: defaultRole}
		if err := s.rbac.CreateRole(ctx, role); err != nil {
			log.Printf("Error creating role: %v", err)
		}
	}
	if err := s.rbac.AssignRoleToUser(ctx, userID, role.ID); err != nil {
		log.Printf("Error assigning role to user: %v", err)
	}
}

// LoginPasswordHandler handles user login with username and password.
func (s *Server) LoginPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("Login failed for %s: %v", req.Username, err)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)); err != nil {
		log.Printf("Password mismatch for user %s", req.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	_, token, err := s.sessions.Issue(w, r, user.ID, user.Username, user.Roles)
	if err != nil {
		log.Printf("Error setting session cookie: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to set session")
		return
	}
	log.Printf("User %s logged in via password", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Logged in successfully",
		"userId":   user.ID,
		"username": user.Username,
		"token":    token,
	})
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*User, bool) {
	ses, err := session.GetSession(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	user, err := s.Store.GetUserByID(r.Context(), ses.UserID)
	if errors.Is(err, ErrUserNotFound) {
		session.ClearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "User session invalid or user not found")
		return nil, false
	}
	if err != nil {
		log.Printf("Error loading user %s: %v", ses.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return nil, false
	}
	return user, true
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UserSettingsHandler updates the caller's name, preferences or password.
func (s *Server) UserSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated := false
	if req.Name != nil {
		user.Name = *req.Name
		updated = true
	}
	if req.Preferences != nil {
		user.Preferences = *req.Preferences
		updated = true
	}
	if req.NewPassword != nil && *req.NewPassword != "" {
		if err := ValidatePassword(*req.NewPassword); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("Error hashing new password: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to update password")
			return
		}
		user.PasswordHash = hashedPassword
		updated = true
	}
	if !updated {
		writeError(w, http.StatusBadRequest, "No settings provided for update")
		return
	}

	if err := s.Store.UpdateUser(r.Context(), user); err != nil {
		log.Printf("Error updating user settings for %s: %v", user.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
