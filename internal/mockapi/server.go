package mockapi

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/session"
)

// Paths served. They match the client's endpoint constants.
const (
	PathToken       = "/common/v1/auth/token"
	PathSave        = "/common/v1/mobile/save"
	PathUpdateCheck = "/common/v1/mobile/update-check"
	PathIsStarted   = "/common/v1/mobile/isStarted"
	PathGetRecord   = "/common/v1/mobile/get-record"
	PathListDtl     = "/common/v1/mobile/get-list-dtl"
)

// Config configures a Server.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenTTL     time.Duration // default 1h
	Clock        clock.Clock
}

// Server is the in-memory API.
//
// Thread-safety: all methods are safe for concurrent use.
type Server struct {
	cfg    Config
	clock  clock.Clock
	engine *gin.Engine

	mu           sync.Mutex
	nextID       int
	saves        []SaveBody
	records      map[string][]record
	updates      []UpdateBody
	contracts    map[string][]Contract
	nextAction   map[string]string
	failures     map[string][]int
	rejects      map[string]int
	expireTokens int
	tokensIssued int
	calls        []Call
}

// New creates a server with its routes registered.
func New(cfg Config) *Server {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Server{
		cfg:        cfg,
		clock:      clock.OrSystem(cfg.Clock),
		records:    make(map[string][]record),
		contracts:  make(map[string][]Contract),
		nextAction: make(map[string]string),
		failures:   make(map[string][]int),
		rejects:    make(map[string]int),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST(PathToken, s.handleToken)

	mobile := r.Group("/", s.injectFailures, s.authenticate, s.verifySignature)
	mobile.POST(PathSave, s.handleSave)
	mobile.PUT(PathUpdateCheck, s.handleUpdateCheck)
	mobile.POST(PathIsStarted, s.handleIsStarted)
	mobile.POST(PathGetRecord, s.handleGetRecord)
	mobile.POST(PathListDtl, s.handleListDtl)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// FailNext makes the next n requests to path fail with the HTTP status.
func (s *Server) FailNext(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures[path] = append(s.failures[path], status)
	}
}

// RejectNext makes the next n requests to path answer 200 with Status 0.
func (s *Server) RejectNext(path string, n int) {
	s.mu.Lock()
	s.rejects[path] += n
	s.mu.Unlock()
}

// ExpireTokens makes the next n authenticated requests answer 401.
func (s *Server) ExpireTokens(n int) {
	s.mu.Lock()
	s.expireTokens += n
	s.mu.Unlock()
}

// SetNextAction overrides the isStarted answer for employee. An empty action
// restores the answer derived from stored start and stop saves.
func (s *Server) SetNextAction(employee, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if action == "" {
		delete(s.nextAction, employee)
		return
	}
	s.nextAction[employee] = action
}

// SetContracts replaces the contracts served for employee.
func (s *Server) SetContracts(employee string, contracts []Contract) {
	s.mu.Lock()
	s.contracts[employee] = append([]Contract(nil), contracts...)
	s.mu.Unlock()
}

// Saves returns the accepted saves for employee, or all when employee is "".
func (s *Server) Saves(employee string) []SaveBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SaveBody
	for _, b := range s.saves {
		if employee == "" || b.EmployeeName == employee {
			out = append(out, b)
		}
	}
	return out
}

// Updates returns the accepted update-check requests.
func (s *Server) Updates() []UpdateBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateBody(nil), s.updates...)
}

// Calls returns the authenticated requests made to path.
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// TokensIssued returns how many access tokens were granted.
func (s *Server) TokensIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensIssued
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(http.StatusOK, gin.H{"Status": status, "Message": message, "Data": data})
}

func (s *Server) injectFailures(c *gin.Context) {
	path := c.FullPath()

	s.mu.Lock()
	var fail int
	if q := s.failures[path]; len(q) > 0 {
		fail = q[0]
		s.failures[path] = q[1:]
	}
	reject := s.rejects[path] > 0
	if reject && fail == 0 {
		s.rejects[path]--
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:     c.Request.Method,
			Path:       path,
			Timestamp:  c.GetHeader("X-TIMESTAMP"),
			Signature:  c.GetHeader("X-SIGNATURE"),
			ExternalID: c.GetHeader("X-EXTERNAL-ID"),
			Status:     c.Writer.Status(),
		})
		s.mu.Unlock()
	}()

	switch {
	case fail != 0:
		c.AbortWithStatusJSON(fail, gin.H{"Status": 0, "Message": http.StatusText(fail)})
	case reject:
		c.Abort()
		respond(c, 0, "rejected", nil)
	default:
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) {
	s.mu.Lock()
	expired := s.expireTokens > 0
	if expired {
		s.expireTokens--
	}
	s.mu.Unlock()
	if expired {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"Status": 0, "Message": "token expired"})
		return
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.ClientSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"Status": 0, "Message": "invalid or expired token"})
		return
	}
	if c.GetHeader("X-PARTNER-ID") != s.cfg.ClientID {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"Status": 0, "Message": "unknown partner"})
		return
	}
	c.Set("token", parts[1])
	c.Next()
}

func (s *Server) verifySignature(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	in := session.SigningInput{
		Method:    c.Request.Method,
		Path:      c.FullPath(),
		Token:     c.GetString("token"),
		Body:      raw,
		Timestamp: c.GetHeader("X-TIMESTAMP"),
	}
	if in.Timestamp == "" || !session.Verify(in, s.cfg.ClientSecret, c.GetHeader("X-SIGNATURE")) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": "invalid signature"})
		return
	}
	c.Next()
}
