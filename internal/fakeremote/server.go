// Package fakeremote is an in-memory implementation of the remote hike
// service and its image object store. It backs the gateway and engine tests
// and the `trailsync devserver` command.
package fakeremote

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userIDKey = "userID"

// Hike is a remote hike record as the service stores and lists it.
type Hike struct {
	ID               string   `json:"id"`
	UserID           string   `json:"userId"`
	Name             string   `json:"name"`
	Location         string   `json:"location"`
	Date             string   `json:"date,omitempty"`
	Time             string   `json:"time,omitempty"`
	Length           float64  `json:"length"`
	Difficulty       string   `json:"difficulty"`
	ParkingAvailable bool     `json:"parkingAvailable"`
	Description      string   `json:"description"`
	Privacy          string   `json:"privacy"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
	CreatedAt        int64    `json:"createdAt"`
}

// Observation is a remote observation record.
type Observation struct {
	ID            string   `json:"id"`
	HikeID        string   `json:"hikeId"`
	UserID        string   `json:"userId"`
	Title         string   `json:"title"`
	Time          string   `json:"time,omitempty"`
	Comments      string   `json:"comments"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
	Status        string   `json:"status"`
	Confirmations int      `json:"confirmations"`
	Disputes      int      `json:"disputes"`
}

type hikeBody struct {
	UserID           string   `json:"userId" binding:"required"`
	Name             string   `json:"name" binding:"required"`
	Location         string   `json:"location"`
	Date             string   `json:"date"`
	Time             string   `json:"time"`
	Length           float64  `json:"length" binding:"gte=0"`
	Difficulty       string   `json:"difficulty"`
	ParkingAvailable bool     `json:"parkingAvailable"`
	Description      string   `json:"description"`
	Privacy          string   `json:"privacy"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
}

type observationBody struct {
	HikeID   string   `json:"hikeId" binding:"required"`
	UserID   string   `json:"userId" binding:"required"`
	Title    string   `json:"title" binding:"required"`
	Time     string   `json:"time"`
	Comments string   `json:"comments"`
	ImageURL string   `json:"imageUrl"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Status   string   `json:"status"`
}

// Server holds the in-memory remote state. All methods are safe for
// concurrent use.
type Server struct {
	mu           sync.Mutex
	tokens       map[string]string // bearer token -> user id
	hikes        []*Hike
	observations []*Observation
	images       map[string][]byte

	failHikes   map[string]bool
	failUploads bool
	calls       map[string]int

	log    *slog.Logger
	router *gin.Engine
}

// New returns an empty Server.
func New(logger *slog.Logger) *Server {
	s := &Server{
		tokens:    make(map[string]string),
		images:    make(map[string][]byte),
		failHikes: make(map[string]bool),
		calls:     make(map[string]int),
		log:       logger,
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler serving the remote API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddToken authorises token as userID.
func (s *Server) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// FailHikeNamed makes create and update requests for hikes with this name
// fail with 500.
func (s *Server) FailHikeNamed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHikes[name] = true
}

// FailUploads makes image uploads fail with 500 while set.
func (s *Server) FailUploads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = fail
}

// Calls returns how many requests matched the route, e.g. "POST /hikes" or
// "DELETE /hikes/:id".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// SeedHike stores h for userID and returns its id. An empty h.ID is assigned.
func (s *Server) SeedHike(userID string, h Hike) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = newID()
	}
	h.UserID = userID
	if h.CreatedAt == 0 {
		h.CreatedAt = time.Now().UnixMilli()
	}
	s.hikes = append(s.hikes, &h)
	return h.ID
}

// SeedObservation stores o under the remote hike hikeID and returns its id.
func (s *Server) SeedObservation(hikeID string, o Observation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = newID()
	}
	o.HikeID = hikeID
	if o.Status == "" {
		o.Status = "Open"
	}
	s.observations = append(s.observations, &o)
	return o.ID
}

// SeedImage stores an image under name and returns its path on the server.
func (s *Server) SeedImage(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = data
	return "/images/" + name
}

// Hikes returns a copy of every hike owned by userID.
func (s *Server) Hikes(userID string) []Hike {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Hike
	for _, h := range s.hikes {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out
}

// Observations returns a copy of every observation under the remote hike.
func (s *Server) Observations(hikeID string) []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Observation
	for _, o := range s.observations {
		if o.HikeID == hikeID {
			out = append(out, *o)
		}
	}
	return out
}

// Image returns the stored bytes for name.
func (s *Server) Image(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.images[name]
	return b, ok
}

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Object storage: unsigned uploads and public reads.
	r.POST("/upload", s.uploadImage)
	r.GET("/images/:name", s.getImage)

	api := r.Group("/")
	api.Use(s.auth())
	{
		api.POST("/hikes", s.createHike)
		api.PUT("/hikes/:id", s.updateHike)
		api.DELETE("/hikes/:id", s.deleteHike)
		api.GET("/hikes/my", s.listMyHikes)
		api.POST("/observations", s.createObservation)
		api.GET("/observations/hike/:id", s.listObservations)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.mu.Lock()
		s.calls[c.Request.Method+" "+c.FullPath()]++
		s.mu.Unlock()

		s.log.Debug("fakeremote request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		s.mu.Lock()
		userID, ok := s.tokens[strings.TrimSpace(h[7:])]
		s.mu.Unlock()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (s *Server) createHike(c *gin.Context) {
	var body hikeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and name are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHikes[body.Name] {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}
	h := body.toHike(newID(), currentUser(c))
	h.CreatedAt = time.Now().UnixMilli()
	s.hikes = append(s.hikes, h)
	c.JSON(http.StatusCreated, h)
}

func (s *Server) updateHike(c *gin.Context) {
	var body hikeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and name are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ownedHike(c.Param("id"), currentUser(c))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "hike not found"})
		return
	}
	if s.failHikes[body.Name] {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}
	h := body.toHike(s.hikes[i].ID, s.hikes[i].UserID)
	h.CreatedAt = s.hikes[i].CreatedAt
	s.hikes[i] = h
	c.JSON(http.StatusOK, h)
}

func (s *Server) deleteHike(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	i := s.ownedHike(id, currentUser(c))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "hike not found"})
		return
	}
	s.hikes = append(s.hikes[:i], s.hikes[i+1:]...)

	kept := s.observations[:0]
	for _, o := range s.observations {
		if o.HikeID != id {
			kept = append(kept, o)
		}
	}
	s.observations = kept
	c.JSON(http.StatusOK, gin.H{"message": "hike deleted"})
}

func (s *Server) listMyHikes(c *gin.Context) {
	userID := currentUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Hike{}
	for _, h := range s.hikes {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createObservation(c *gin.Context) {
	var body observationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hikeId, userId, and title are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownedHike(body.HikeID, currentUser(c)) < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "hike not found"})
		return
	}
	status := body.Status
	if status == "" {
		status = "Open"
	}
	o := &Observation{
		ID:       newID(),
		HikeID:   body.HikeID,
		UserID:   currentUser(c),
		Title:    body.Title,
		Time:     body.Time,
		Comments: body.Comments,
		ImageURL: body.ImageURL,
		Lat:      body.Lat,
		Lng:      body.Lng,
		Status:   status,
	}
	s.observations = append(s.observations, o)
	c.JSON(http.StatusCreated, o)
}

func (s *Server) listObservations(c *gin.Context) {
	hikeID := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Observation{}
	for _, o := range s.observations {
		if o.HikeID == hikeID {
			out = append(out, o)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) uploadImage(c *gin.Context) {
	if strings.TrimSpace(c.PostForm("upload_preset")) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_preset is required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}
	ext := path.Ext(fh.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	name := newID() + ext
	s.images[name] = data

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	c.JSON(http.StatusOK, gin.H{
		"public_id":  strings.TrimSuffix(path.Join(c.PostForm("folder"), name), ext),
		"secure_url": fmt.Sprintf("%s://%s/images/%s", scheme, c.Request.Host, name),
		"bytes":      len(data),
	})
}

func (s *Server) getImage(c *gin.Context) {
	s.mu.Lock()
	data, ok := s.images[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// ownedHike returns the index of hike id if it belongs to userID, or -1.
// Callers must hold s.mu.
func (s *Server) ownedHike(id, userID string) int {
	for i, h := range s.hikes {
		if h.ID == id && h.UserID == userID {
			return i
		}
	}
	return -1
}

func (b hikeBody) toHike(id, userID string) *Hike {
	privacy := b.Privacy
	if privacy == "" {
		privacy = "private"
	}
	return &Hike{
		ID:               id,
		UserID:           userID,
		Name:             b.Name,
		Location:         b.Location,
		Date:             b.Date,
		Time:             b.Time,
		Length:           b.Length,
		Difficulty:       b.Difficulty,
		ParkingAvailable: b.ParkingAvailable,
		Description:      b.Description,
		Privacy:          privacy,
		Lat:              b.Lat,
		Lng:              b.Lng,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
