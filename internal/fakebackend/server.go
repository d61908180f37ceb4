// Package fakebackend is an in-process telemedicine REST backend used by
// tests and the probe CLI's demo mode. It speaks the real response envelope
// and can be told to fail in the ways the client must tell apart.
package fakebackend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Password accepted for every seeded user.
const Password = "password"

var signingKey = []byte("fakebackend-signing-key")

type User struct {
	ID       string `json:"id"`
	UserType string `json:"user_type"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type Appointment struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Slot      string `json:"slot"`
}

type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
	ErrorCode  string `json:"error_code,omitempty"`
	Field      string `json:"field,omitempty"`
}

// Fault is a forced response for a path.
type Fault int

const (
	// FaultUnauthorized answers 401.
	FaultUnauthorized Fault = iota + 1
	// FaultEnvelopeUnauthorized answers HTTP 200 with status_code 401 in the body.
	FaultEnvelopeUnauthorized
	// FaultRedirectToLogin answers 302 to the login page.
	FaultRedirectToLogin
	// FaultServerError answers 503.
	FaultServerError
	// FaultGarbage answers 200 with a body that is not JSON.
	FaultGarbage
	// FaultDrop closes the connection without a response.
	FaultDrop
)

type Server struct {
	*httptest.Server
	e *echo.Echo

	mu           sync.Mutex
	users        map[string]User   // by email
	tokens       map[string]string // token -> email
	doctors      []Doctor
	appointments []Appointment
	settings     map[string]any
	hits         map[string]int
	faults       map[string]Fault
	delays       map[string]time.Duration
	lastHeaders  http.Header
	tokenTTL     time.Duration
}

// New starts a Server with seeded users and doctors. Close it when done.
func New() *Server {
	s := &Server{
		users: map[string]User{
			"patient@example.com": {ID: "p-1", UserType: "patient", Name: "Layla Hassan", Email: "patient@example.com"},
			"doctor@example.com":  {ID: "d-1", UserType: "doctor", Name: "Dr. Omar Nasser", Email: "doctor@example.com"},
			"admin@example.com":   {ID: "a-1", UserType: "admin", Name: "Admin", Email: "admin@example.com"},
		},
		tokens: make(map[string]string),
		doctors: []Doctor{
			{ID: "d-1", Name: "Omar Nasser", Specialty: "cardiology"},
			{ID: "d-2", Name: "Sara Khalil", Specialty: "dermatology"},
		},
		settings: map[string]any{"language": "en", "notifications": true},
		hits:     make(map[string]int),
		faults:   make(map[string]Fault),
		delays:   make(map[string]time.Duration),
		tokenTTL: time.Hour,
	}
	s.e = echo.New()
	s.e.HideBanner = true
	s.e.HidePort = true
	s.routes()
	s.Server = httptest.NewServer(s.e)
	return s
}

func (s *Server) routes() {
	s.e.Use(s.record, s.inject)

	s.e.POST("/auth/login", s.login)
	s.e.POST("/auth/register", s.register)

	s.e.GET("/auth/me", s.me, s.requireToken)
	s.e.POST("/auth/logout", s.logout, s.requireToken)
	s.e.GET("/users/doctors", s.listDoctors, s.requireToken)
	s.e.GET("/doctors/:id/availability", s.availability, s.requireToken)
	s.e.GET("/appointments", s.listAppointments, s.requireToken)
	s.e.POST("/appointments", s.createAppointment, s.requireToken)
	s.e.GET("/messages", s.listMessages, s.requireToken)
	s.e.GET("/prescriptions", s.listPrescriptions, s.requireToken)
	s.e.GET("/user-settings", s.getSettings, s.requireToken)
	s.e.PUT("/user-settings", s.putSettings, s.requireToken)
}

// Hits returns how many requests reached method+path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// LastHeaders returns the headers of the most recent request.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders.Clone()
}

// SetFault forces the response of every request to path. Fault 0 clears it.
func (s *Server) SetFault(path string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == 0 {
		delete(s.faults, path)
		return
	}
	s.faults[path] = f
}

// SetDelay holds requests to path for d before handling them. Zero clears it.
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, path)
		return
	}
	s.delays[path] = d
}

// RevokeAll invalidates every issued token, as a server-side session purge would.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// SetTokenTTL changes the exp claim of tokens issued from now on.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// Appointments returns a copy of the stored appointments.
func (s *Server) Appointments() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Appointment(nil), s.appointments...)
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.hits[c.Request().Method+" "+c.Request().URL.Path]++
		s.lastHeaders = c.Request().Header.Clone()
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) inject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		f := s.faults[c.Request().URL.Path]
		delay := s.delays[c.Request().URL.Path]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-c.Request().Context().Done():
				return c.Request().Context().Err()
			}
		}

		switch f {
		case FaultUnauthorized:
			return fail(c, http.StatusUnauthorized, "Unauthorized", "unauthorized", "")
		case FaultEnvelopeUnauthorized:
			return c.JSON(http.StatusOK, envelope{Success: false, Message: "Token expired", StatusCode: http.StatusUnauthorized})
		case FaultRedirectToLogin:
			return c.Redirect(http.StatusFound, "/index.html?reason=expired")
		case FaultServerError:
			return fail(c, http.StatusServiceUnavailable, "Service unavailable", "unavailable", "")
		case FaultGarbage:
			return c.HTML(http.StatusOK, "<html>maintenance</html>")
		case FaultDrop:
			if hj, ok := c.Response().Writer.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					return conn.Close()
				}
			}
			return fail(c, http.StatusBadGateway, "dropped", "", "")
		}
		return next(c)
	}
}

func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		s.mu.Lock()
		email, ok := s.tokens[token]
		user := s.users[email]
		s.mu.Unlock()
		if token == "" || !ok {
			return fail(c, http.StatusUnauthorized, "Unauthorized", "unauthorized", "")
		}
		c.Set("user", user)
		c.Set("token", token)
		return next(c)
	}
}

func success(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, StatusCode: status, Data: data})
}

func fail(c echo.Context, status int, message, code, field string) error {
	return c.JSON(status, envelope{Success: false, Message: message, StatusCode: status, ErrorCode: code, Field: field})
}

func arabic(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get("Accept-Language"), "ar")
}

func (s *Server) issueToken(user User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       user.ID,
		"user_type": user.UserType,
		"email":     user.Email,
		"iat":       now.Unix(),
		"exp":       now.Add(s.tokenTTL).Unix(),
		"jti":       fmt.Sprintf("%d", now.UnixNano()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", "bad_request", "")
	}
	if req.Email == "" {
		return fail(c, http.StatusBadRequest, "Email is required", "validation_error", "email")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, found := s.users[strings.ToLower(req.Email)]
	if !found || req.Password != Password {
		return fail(c, http.StatusUnauthorized, "Invalid email or password", "invalid_credentials", "password")
	}
	token, err := s.issueToken(user)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error(), "internal", "")
	}
	s.tokens[token] = user.Email
	return success(c, http.StatusOK, "Login successful", map[string]any{"token": token, "user": user})
}

func (s *Server) register(c echo.Context) error {
	var req User
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return fail(c, http.StatusBadRequest, "Email is required", "validation_error", "email")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		return fail(c, http.StatusConflict, "Email already registered", "duplicate_email", "email")
	}
	req.ID = fmt.Sprintf("u-%d", len(s.users)+1)
	s.users[req.Email] = req
	return success(c, http.StatusCreated, "Registered", req)
}

func (s *Server) me(c echo.Context) error {
	return success(c, http.StatusOK, "", c.Get("user"))
}

func (s *Server) logout(c echo.Context) error {
	s.mu.Lock()
	delete(s.tokens, c.Get("token").(string))
	s.mu.Unlock()
	return success(c, http.StatusOK, "Logged out", nil)
}

func (s *Server) listDoctors(c echo.Context) error {
	s.mu.Lock()
	doctors := append([]Doctor(nil), s.doctors...)
	s.mu.Unlock()

	if arabic(c) {
		for i := range doctors {
			doctors[i].Name = "د. " + doctors[i].Name
		}
	}
	if specialty := c.QueryParam("specialty"); specialty != "" {
		filtered := doctors[:0]
		for _, d := range doctors {
			if d.Specialty == specialty {
				filtered = append(filtered, d)
			}
		}
		doctors = filtered
	}
	return success(c, http.StatusOK, "", doctors)
}

func (s *Server) availability(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := make(map[string]bool)
	for _, a := range s.appointments {
		if a.DoctorID == c.Param("id") {
			taken[a.Slot] = true
		}
	}
	var free []string
	for _, slot := range []string{"09:00", "10:00", "11:00"} {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	return success(c, http.StatusOK, "", free)
}

func (s *Server) listAppointments(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return success(c, http.StatusOK, "", append([]Appointment{}, s.appointments...))
}

func (s *Server) createAppointment(c echo.Context) error {
	var req Appointment
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", "bad_request", "")
	}
	if req.DoctorID == "" {
		return c.JSON(http.StatusOK, envelope{Success: false, Message: "Doctor is required", StatusCode: http.StatusUnprocessableEntity, ErrorCode: "validation_error", Field: "doctor_id"})
	}
	user := c.Get("user").(User)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if a.DoctorID == req.DoctorID && a.Slot == req.Slot {
			return fail(c, http.StatusConflict, "Slot already booked", "slot_taken", "slot")
		}
	}
	req.ID = fmt.Sprintf("appt-%d", len(s.appointments)+1)
	req.PatientID = user.ID
	s.appointments = append(s.appointments, req)
	return success(c, http.StatusCreated, "Appointment booked", req)
}

func (s *Server) listMessages(c echo.Context) error {
	return success(c, http.StatusOK, "", []any{})
}

func (s *Server) listPrescriptions(c echo.Context) error {
	return success(c, http.StatusOK, "", []map[string]string{{"id": "rx-1", "drug": "amoxicillin"}})
}

func (s *Server) getSettings(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return success(c, http.StatusOK, "", out)
}

func (s *Server) putSettings(c echo.Context) error {
	var req map[string]any
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", "bad_request", "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range req {
		s.settings[k] = v
	}
	return success(c, http.StatusOK, "Settings saved", s.settings)
}
